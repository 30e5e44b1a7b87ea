// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ring_tracker/internal/imu"
)

// IMUSource samples an MPU-9250 wired to this host over SPI and emits the
// same text frames the ring firmware sends. The device stays at its
// power-on ranges (±2g, ±250°/s) so the standard sensitivities apply.
type IMUSource struct {
	dev    *mpu9250.MPU9250
	ticker *time.Ticker

	closeOnce sync.Once
	done      chan struct{}
}

// NewIMUSource initializes the MPU-9250 on spiDev with chip select csPin and
// samples it every interval.
func NewIMUSource(spiDev, csPin string, interval time.Duration) (*IMUSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if _, err := dev.SelfTest(); err != nil {
		log.Printf("transport: IMU self-test failed: %v", err)
	}
	if err := dev.Calibrate(); err != nil {
		log.Printf("transport: IMU calibration failed: %v", err)
	} else {
		log.Println("transport: IMU calibration complete")
	}

	return &IMUSource{
		dev:    dev,
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}, nil
}

// NextFrame waits for the next sampling tick and reads all six channels.
func (s *IMUSource) NextFrame() (imu.Frame, error) {
	var t time.Time
	select {
	case <-s.done:
		return imu.Frame{}, imu.ErrSourceClosed
	case t = <-s.ticker.C:
	}

	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.Frame{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.Frame{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.Frame{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.Frame{}, fmt.Errorf("IMU gyro X: %w", err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.Frame{}, fmt.Errorf("IMU gyro Y: %w", err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.Frame{}, fmt.Errorf("IMU gyro Z: %w", err)
	}

	return imu.Frame{Text: imu.FormatFrame(ax, ay, az, gx, gy, gz), At: t}, nil
}

func (s *IMUSource) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}
