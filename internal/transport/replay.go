// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/ring_tracker/internal/imu"
)

// Recording format, one delivered frame per line:
//
//	<arrival time, unix nanoseconds>\t<frame text>

// FormatRecord renders one recording line (without the newline).
func FormatRecord(f imu.Frame) string {
	return strconv.FormatInt(f.At.UnixNano(), 10) + "\t" + f.Text
}

// ParseRecord splits a recording line back into a frame.
func ParseRecord(line string) (imu.Frame, error) {
	stamp, text, ok := strings.Cut(line, "\t")
	if !ok {
		return imu.Frame{}, fmt.Errorf("record %q: missing tab", line)
	}
	ns, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return imu.Frame{}, fmt.Errorf("record timestamp %q: %w", stamp, err)
	}
	return imu.Frame{Text: text, At: time.Unix(0, ns)}, nil
}

// ReplaySource plays back a recording. Frames keep their recorded arrival
// times, so a replay feeds the engine exactly the timing it saw live. With
// realtime set the source also waits out the recorded gaps.
type ReplaySource struct {
	rc       io.ReadCloser
	scanner  *bufio.Scanner
	realtime bool
	after    func(time.Duration) <-chan time.Time

	last time.Time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewReplaySource reads a recording from rc.
func NewReplaySource(rc io.ReadCloser, realtime bool) *ReplaySource {
	return &ReplaySource{
		rc:       rc,
		scanner:  bufio.NewScanner(rc),
		realtime: realtime,
		after:    time.After,
		done:     make(chan struct{}),
	}
}

// NextFrame returns the next recorded frame, io.EOF at the end, or
// imu.ErrSourceClosed once Close has been called.
func (s *ReplaySource) NextFrame() (imu.Frame, error) {
	for {
		ok := s.scanner.Scan()
		if s.closed.Load() {
			return imu.Frame{}, imu.ErrSourceClosed
		}
		if !ok {
			break
		}
		line := s.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		f, err := ParseRecord(line)
		if err != nil {
			return imu.Frame{}, fmt.Errorf("replay: %w", err)
		}
		if s.realtime && !s.last.IsZero() {
			if gap := f.At.Sub(s.last); gap > 0 {
				select {
				case <-s.after(gap):
				case <-s.done:
					return imu.Frame{}, imu.ErrSourceClosed
				}
			}
		}
		s.last = f.At
		return f, nil
	}
	if err := s.scanner.Err(); err != nil {
		return imu.Frame{}, fmt.Errorf("replay: %w", err)
	}
	return imu.Frame{}, io.EOF
}

func (s *ReplaySource) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

// recordingSource copies every delivered frame, rejected ones included, to a
// recording before handing it on.
type recordingSource struct {
	src imu.FrameSource

	mu sync.Mutex
	w  *bufio.Writer
	wc io.WriteCloser

	closeOnce sync.Once
	closeErr  error
}

// NewRecordingSource wraps src so that every frame is also written to wc.
func NewRecordingSource(src imu.FrameSource, wc io.WriteCloser) imu.FrameSource {
	return &recordingSource{src: src, w: bufio.NewWriter(wc), wc: wc}
}

func (r *recordingSource) NextFrame() (imu.Frame, error) {
	f, err := r.src.NextFrame()
	if err != nil {
		return f, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.WriteString(FormatRecord(f) + "\n"); err != nil {
		return imu.Frame{}, fmt.Errorf("record: %w", err)
	}
	return f, nil
}

func (r *recordingSource) Close() error {
	r.closeOnce.Do(func() {
		srcErr := r.src.Close()

		r.mu.Lock()
		flushErr := r.w.Flush()
		r.mu.Unlock()
		closeErr := r.wc.Close()

		switch {
		case srcErr != nil:
			r.closeErr = srcErr
		case flushErr != nil:
			r.closeErr = fmt.Errorf("record flush: %w", flushErr)
		default:
			r.closeErr = closeErr
		}
	})
	return r.closeErr
}
