// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport provides the concrete frame sources: byte streams that
// carry one frame per line (serial, TCP), MQTT messages, the local IMU, and
// recorded sessions.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/ring_tracker/internal/imu"
)

// lineSource turns a newline-delimited byte stream into frames stamped with
// their arrival time.
type lineSource struct {
	name   string
	rc     io.ReadCloser
	reader *bufio.Reader
	now    func() time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newLineSource(name string, rc io.ReadCloser) *lineSource {
	return &lineSource{
		name:   name,
		rc:     rc,
		reader: bufio.NewReader(rc),
		now:    time.Now,
	}
}

// NextFrame returns the next non-blank line. A read error, including io.EOF,
// means the link is gone.
func (s *lineSource) NextFrame() (imu.Frame, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if s.closed.Load() {
			return imu.Frame{}, imu.ErrSourceClosed
		}
		text := strings.TrimSpace(line)
		if err != nil {
			if errors.Is(err, io.EOF) && text != "" {
				return imu.Frame{Text: text, At: s.now()}, nil
			}
			return imu.Frame{}, fmt.Errorf("%s: %w", s.name, err)
		}
		if text == "" {
			continue
		}
		return imu.Frame{Text: text, At: s.now()}, nil
	}
}

func (s *lineSource) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}
