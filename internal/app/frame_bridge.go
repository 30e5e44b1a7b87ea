// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/ring_tracker/internal/config"
	"github.com/relabs-tech/ring_tracker/internal/imu"
	"github.com/relabs-tech/ring_tracker/internal/orientation"
	"github.com/relabs-tech/ring_tracker/internal/transport"
)

// RunFrameBridge samples an IMU wired to this host (or the emulator when
// FRAME_SOURCE=mock) and publishes each frame, as the firmware formats it,
// on TOPIC_FRAMES. A tracker with FRAME_SOURCE=mqtt consumes them.
func RunFrameBridge(cfg *config.Config) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required for the frame bridge")
	}

	var (
		src imu.FrameSource
		err error
	)
	if cfg.FrameSource == config.SourceMock {
		log.Println("bridge: using mock frame source")
		src = orientation.NewMockSource(ms(cfg.IMUSampleInterval))
	} else {
		src, err = transport.NewIMUSource(cfg.IMUSPIDevice, cfg.IMUCSPin, ms(cfg.IMUSampleInterval))
		if err != nil {
			return err
		}
	}
	defer src.Close()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDBridge)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	defer client.Disconnect(250)

	log.Printf("bridge: connected to MQTT, publishing frames on %s", cfg.TopicFrames)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		src.Close()
	}()

	var sent uint64
	for {
		f, err := src.NextFrame()
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("bridge: stopped after %d frames", sent)
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if token := client.Publish(cfg.TopicFrames, 0, false, f.Text); token.Wait() && token.Error() != nil {
			log.Printf("MQTT publish error (%s): %v", cfg.TopicFrames, token.Error())
			continue
		}
		sent++
		if sent%1000 == 0 {
			log.Printf("bridge: %d frames published, last %s", sent, f.Text)
		}
	}
}
