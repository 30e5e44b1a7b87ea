// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/ring_tracker/internal/imu"
)

type mockSource struct {
	start  time.Time
	ticker *time.Ticker

	closeOnce sync.Once
	done      chan struct{}
}

// NewMockSource creates a frame source that emulates the ring: it rocks
// slowly in roll and pitch while turning at a constant yaw rate, and emits
// frames in raw counts every interval.
func NewMockSource(interval time.Duration) imu.FrameSource {
	return &mockSource{
		start:  time.Now(),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
}

func (m *mockSource) NextFrame() (imu.Frame, error) {
	select {
	case <-m.done:
		return imu.Frame{}, imu.ErrSourceClosed
	case t := <-m.ticker.C:
		return imu.Frame{Text: MockFrameAt(t.Sub(m.start).Seconds()), At: t}, nil
	}
}

func (m *mockSource) Close() error {
	m.closeOnce.Do(func() {
		m.ticker.Stop()
		close(m.done)
	})
	return nil
}

// MockFrameAt returns the emulated frame elapsed seconds after start.
func MockFrameAt(elapsed float64) string {
	roll := 20 * math.Sin(elapsed) * math.Pi / 180
	pitch := 15 * math.Cos(elapsed*0.7) * math.Pi / 180

	// gravity seen from the device for this tilt
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	ax, ay, az := -sp, cp*sr, cp*cr

	rollRate := 20 * math.Cos(elapsed)
	pitchRate := -15 * 0.7 * math.Sin(elapsed*0.7)
	yawRate := 30.0

	return imu.FormatFrame(
		counts(ax*imu.AccelLSBPerG),
		counts(ay*imu.AccelLSBPerG),
		counts(az*imu.AccelLSBPerG),
		counts(rollRate*imu.GyroLSBPerDPS),
		counts(pitchRate*imu.GyroLSBPerDPS),
		counts(yawRate*imu.GyroLSBPerDPS),
	)
}

func counts(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
