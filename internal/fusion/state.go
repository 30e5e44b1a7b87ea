// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"log"
	"sync"
)

// Snapshot is a consistent copy of the motion state.
//
// Angles are radians. Position and velocity are in world units derived from
// integrated m/s² acceleration. The filtered channels are low-pass filtered
// readings, not raw values.
type Snapshot struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"` // gyro only, drifts freely

	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`

	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
	VZ float64 `json:"vz"`

	AxG float64 `json:"ax_g"`
	AyG float64 `json:"ay_g"`
	AzG float64 `json:"az_g"`

	GxDPS float64 `json:"gx_dps"`
	GyDPS float64 `json:"gy_dps"`
	GzDPS float64 `json:"gz_dps"`

	// World-frame acceleration of the last update, after gravity removal
	// and thresholding.
	AccWorldX float64 `json:"acc_world_x"`
	AccWorldY float64 `json:"acc_world_y"`
	AccWorldZ float64 `json:"acc_world_z"`

	Initialized bool `json:"initialized"`
	Running     bool `json:"running"`
}

// State is the shared motion record. Every access, reads included, goes
// through the one mutex; there is no field-level locking.
type State struct {
	mu sync.Mutex
	s  Snapshot
}

// NewState returns a zeroed state with running set.
func NewState() *State {
	return &State{s: Snapshot{Running: true}}
}

// Snapshot copies the whole record under the lock.
func (st *State) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s
}

// ResetPosition zeroes position and velocity. Orientation, filtered readings
// and the initialized flag are left alone.
func (st *State) ResetPosition() {
	st.mu.Lock()
	st.s.X, st.s.Y, st.s.Z = 0, 0, 0
	st.s.VX, st.s.VY, st.s.VZ = 0, 0, 0
	st.mu.Unlock()
	log.Println("fusion: position reset")
}

// Running reports the process-wide liveness flag. Loops poll it once per
// iteration.
func (st *State) Running() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.Running
}

// Stop clears the liveness flag. It never becomes true again.
func (st *State) Stop() {
	st.mu.Lock()
	st.s.Running = false
	st.mu.Unlock()
}
