// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion turns the ring's six-axis stream into orientation and
// position: a complementary filter for roll/pitch (yaw is gyro only) and a
// thresholded, damped double integration of world-frame acceleration.
package fusion

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/ring_tracker/internal/imu"
	"github.com/relabs-tech/ring_tracker/internal/orientation"
)

const (
	LowPassAlpha       = 0.3  // smoothing of the six sensor channels
	ComplementaryAlpha = 0.98 // weight of the gyro-integrated roll/pitch
	Gravity            = 9.81 // m/s²
	VelocityDamping    = 0.98 // applied every update
	NoiseThreshold     = 0.2  // m/s², world-frame components below are zeroed

	MaxDT     = 0.1  // seconds; larger gaps are treated as a transport hiccup
	DefaultDT = 0.01 // seconds; used whenever dt is outside (0, MaxDT]
)

// ErrNonFinite marks an update whose result was NaN or ±Inf somewhere. The
// update is discarded and state keeps its previous values.
var ErrNonFinite = errors.New("non-finite fusion result")

// Stats counts what happened to delivered frames. Every frame lands in
// exactly one counter: Accepted frames were applied (the clock-starting first
// frame included), Rejected frames failed to decode, and Anomalies decoded but
// produced a non-finite update that was discarded.
type Stats struct {
	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
	Anomalies uint64 `json:"anomalies"`
}

// Engine is the stateful fusion core. It mutates State and nothing else.
type Engine struct {
	state       *State
	logRejected bool

	// guarded by state.mu
	lastUpdate time.Time
	haveLast   bool

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	anomalies atomic.Uint64
}

// NewEngine returns an engine updating state. With logRejected set every
// dropped frame is logged; otherwise drops are only counted.
func NewEngine(state *State, logRejected bool) *Engine {
	return &Engine{state: state, logRejected: logRejected}
}

// HandleFrame decodes one delivered frame and applies it. Rejected frames
// return an error wrapping imu.ErrFrameRejected and leave the state and the
// clock untouched.
func (e *Engine) HandleFrame(f imu.Frame) error {
	text, err := imu.UnwrapFrame(f.Text)
	var sample imu.Sample
	if err == nil {
		sample, err = imu.ParseFrame(text)
	}
	if err != nil {
		e.rejected.Add(1)
		if e.logRejected {
			log.Printf("fusion: %v (frame %q)", err, f.Text)
		}
		return err
	}
	return e.Update(sample, f.At)
}

// Update applies one parsed sample taken at now. The first call only starts
// the clock. The whole computation runs with the state lock held.
func (e *Engine) Update(sample imu.Sample, now time.Time) error {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()

	if !e.haveLast {
		e.lastUpdate = now
		e.haveLast = true
		e.accepted.Add(1)
		return nil
	}
	dt := clampDT(now.Sub(e.lastUpdate).Seconds())
	e.lastUpdate = now

	next, err := step(e.state.s, sample, dt)
	if err != nil {
		e.anomalies.Add(1)
		log.Printf("fusion: %v, update discarded", err)
		return err
	}
	e.state.s = next
	e.accepted.Add(1)
	return nil
}

// Stats returns the frame counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Accepted:  e.accepted.Load(),
		Rejected:  e.rejected.Load(),
		Anomalies: e.anomalies.Load(),
	}
}

func clampDT(dt float64) float64 {
	if !(dt > 0 && dt <= MaxDT) {
		return DefaultDT
	}
	return dt
}

// threshold zeroes components whose magnitude is below NoiseThreshold so
// stationary jitter does not integrate into drift.
func threshold(v r3.Vector) r3.Vector {
	if math.Abs(v.X) < NoiseThreshold {
		v.X = 0
	}
	if math.Abs(v.Y) < NoiseThreshold {
		v.Y = 0
	}
	if math.Abs(v.Z) < NoiseThreshold {
		v.Z = 0
	}
	return v
}

func degToRad(d float64) float64 {
	return d * math.Pi / 180
}

// step computes the state following s for one sample and a clamped dt.
func step(s Snapshot, sample imu.Sample, dt float64) (Snapshot, error) {
	ax, ay, az := sample.AccelG()
	gx, gy, gz := sample.GyroDPS()

	if !s.Initialized {
		s.AxG, s.AyG, s.AzG = ax, ay, az
		s.GxDPS, s.GyDPS, s.GzDPS = gx, gy, gz
		s.Initialized = true
	} else {
		s.AxG = orientation.LowPass(s.AxG, ax, LowPassAlpha)
		s.AyG = orientation.LowPass(s.AyG, ay, LowPassAlpha)
		s.AzG = orientation.LowPass(s.AzG, az, LowPassAlpha)
		s.GxDPS = orientation.LowPass(s.GxDPS, gx, LowPassAlpha)
		s.GyDPS = orientation.LowPass(s.GyDPS, gy, LowPassAlpha)
		s.GzDPS = orientation.LowPass(s.GzDPS, gz, LowPassAlpha)
	}

	rollAcc, pitchAcc := orientation.TiltFromAccel(s.AxG, s.AyG, s.AzG)

	s.Roll += degToRad(s.GxDPS) * dt
	s.Pitch += degToRad(s.GyDPS) * dt
	s.Yaw += degToRad(s.GzDPS) * dt

	s.Roll = ComplementaryAlpha*s.Roll + (1-ComplementaryAlpha)*rollAcc
	s.Pitch = ComplementaryAlpha*s.Pitch + (1-ComplementaryAlpha)*pitchAcc

	rot := orientation.RotationMatrix(s.Roll, s.Pitch, s.Yaw)
	local := r3.Vector{X: s.AxG, Y: s.AyG, Z: s.AzG}.Mul(Gravity)
	world := rot.Apply(local)
	world.Z -= Gravity // world Z is up
	world = threshold(world)

	s.VX += world.X * dt
	s.VY += world.Y * dt
	s.VZ += world.Z * dt

	s.VX *= VelocityDamping
	s.VY *= VelocityDamping
	s.VZ *= VelocityDamping

	s.X += s.VX * dt
	s.Y += s.VY * dt
	s.Z += s.VZ * dt

	s.AccWorldX, s.AccWorldY, s.AccWorldZ = world.X, world.Y, world.Z

	if name, ok := firstNonFinite(s); !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNonFinite, name)
	}
	return s, nil
}

func firstNonFinite(s Snapshot) (string, bool) {
	fields := []struct {
		name string
		v    float64
	}{
		{"roll", s.Roll}, {"pitch", s.Pitch}, {"yaw", s.Yaw},
		{"x", s.X}, {"y", s.Y}, {"z", s.Z},
		{"vx", s.VX}, {"vy", s.VY}, {"vz", s.VZ},
		{"ax_g", s.AxG}, {"ay_g", s.AyG}, {"az_g", s.AzG},
		{"gx_dps", s.GxDPS}, {"gy_dps", s.GyDPS}, {"gz_dps", s.GzDPS},
		{"acc_world_x", s.AccWorldX}, {"acc_world_y", s.AccWorldY}, {"acc_world_z", s.AccWorldZ},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return f.name, false
		}
	}
	return "", true
}
