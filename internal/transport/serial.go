// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"log"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/ring_tracker/internal/imu"
)

// NewSerialSource opens the ring's serial console (USB-CDC or a UART bridge),
// which prints one frame per line.
func NewSerialSource(portName string, baudRate int) (imu.FrameSource, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", portName, err)
	}
	log.Printf("transport: serial port opened on %s at %d baud", portName, baudRate)

	return newLineSource("serial "+portName, port), nil
}
