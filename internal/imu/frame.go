// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sensitivities for the ring's MPU-9250 at its power-on ranges (±2g, ±250°/s).
const (
	AccelLSBPerG   = 16384.0
	GyroLSBPerDPS  = 131.0
	FrameDelimiter = ","
	FrameFields    = 6
)

// ErrFrameRejected is returned for frames that do not decode into six numbers.
// Rejected frames are expected under transport noise and must not touch state.
var ErrFrameRejected = errors.New("frame rejected")

// ErrSourceClosed is returned by NextFrame after Close.
var ErrSourceClosed = errors.New("frame source closed")

// Sample is one decoded frame in raw sensor units (counts).
type Sample struct {
	Ax float64 `json:"ax"` // accel
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	Gx float64 `json:"gx"` // gyro
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`
}

// Frame is one delivery from a transport: the undecoded text and the time it
// arrived (or was recorded).
type Frame struct {
	Text string
	At   time.Time
}

// FrameSource is anything that delivers frames over time: serial, TCP, MQTT,
// the local IMU, a replay file or a mock.
//
// NextFrame blocks until a frame arrives. Any error is a transport failure,
// except a bare io.EOF (the orderly end of a finite source such as a replay)
// and ErrSourceClosed after Close.
type FrameSource interface {
	NextFrame() (Frame, error)
	Close() error
}

// ParseFrame decodes "ax,ay,az,gx,gy,gz". Surrounding whitespace (including the
// firmware's trailing newline) is ignored; anything else that is not exactly
// six finite numbers yields ErrFrameRejected.
func ParseFrame(text string) (Sample, error) {
	text = strings.TrimSpace(strings.ToValidUTF8(text, ""))
	parts := strings.Split(text, FrameDelimiter)
	if len(parts) != FrameFields {
		return Sample{}, fmt.Errorf("%w: %d fields, want %d", ErrFrameRejected, len(parts), FrameFields)
	}

	var vals [FrameFields]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: field %d: %v", ErrFrameRejected, i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("%w: field %d is not finite", ErrFrameRejected, i)
		}
		vals[i] = v
	}

	return Sample{
		Ax: vals[0], Ay: vals[1], Az: vals[2],
		Gx: vals[3], Gy: vals[4], Gz: vals[5],
	}, nil
}

// FormatFrame renders raw counts the way the firmware prints them.
func FormatFrame(ax, ay, az, gx, gy, gz int16) string {
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", ax, ay, az, gx, gy, gz)
}

// AccelG converts the accelerometer channels to g.
func (s Sample) AccelG() (x, y, z float64) {
	return s.Ax / AccelLSBPerG, s.Ay / AccelLSBPerG, s.Az / AccelLSBPerG
}

// GyroDPS converts the gyroscope channels to degrees/second.
func (s Sample) GyroDPS() (x, y, z float64) {
	return s.Gx / GyroLSBPerDPS, s.Gy / GyroLSBPerDPS, s.Gz / GyroLSBPerDPS
}
