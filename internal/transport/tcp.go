// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/relabs-tech/ring_tracker/internal/imu"
)

// NewTCPSource connects to a bridge that forwards the ring's notifications as
// newline-delimited frames. There is no reconnect: losing the link ends the
// pipeline.
func NewTCPSource(addr string, dialTimeout time.Duration) (imu.FrameSource, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", addr, err)
	}
	log.Printf("transport: connected to %s", addr)

	return newLineSource("tcp "+addr, conn), nil
}
