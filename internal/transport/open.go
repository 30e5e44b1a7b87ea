// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/ring_tracker/internal/config"
	"github.com/relabs-tech/ring_tracker/internal/imu"
	"github.com/relabs-tech/ring_tracker/internal/orientation"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Open builds the frame source selected by cfg.FrameSource, wrapped in a
// recorder when RECORD_FILE is set.
func Open(cfg *config.Config) (imu.FrameSource, error) {
	var (
		src imu.FrameSource
		err error
	)

	switch cfg.FrameSource {
	case config.SourceSerial:
		src, err = NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate)
	case config.SourceTCP:
		src, err = NewTCPSource(cfg.TCPAddr, ms(cfg.TCPDialTimeout))
	case config.SourceMQTT:
		src, err = NewMQTTSource(cfg.MQTTBroker, cfg.MQTTClientIDTracker+"-frames", cfg.TopicFrames)
	case config.SourceIMU:
		src, err = NewIMUSource(cfg.IMUSPIDevice, cfg.IMUCSPin, ms(cfg.IMUSampleInterval))
	case config.SourceReplay:
		var f *os.File
		f, err = os.Open(cfg.ReplayFile)
		if err == nil {
			src = NewReplaySource(f, cfg.ReplayRealtime)
		}
	case config.SourceMock:
		src = orientation.NewMockSource(ms(cfg.IMUSampleInterval))
	default:
		return nil, fmt.Errorf("unknown frame source %q", cfg.FrameSource)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("transport: using %s frame source", cfg.FrameSource)

	if cfg.RecordFile == "" {
		return src, nil
	}
	out, err := os.Create(cfg.RecordFile)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("record file: %w", err)
	}
	log.Printf("transport: recording frames to %s", cfg.RecordFile)
	return NewRecordingSource(src, out), nil
}
