// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"github.com/relabs-tech/ring_tracker/internal/fusion"
	"github.com/relabs-tech/ring_tracker/internal/orientation"
)

// Scene is what a 3D view needs to place the ring model: orientation in
// degrees and the position already scaled into scene units.
type Scene struct {
	Pose orientation.Pose `json:"pose"`
	X    float64          `json:"x"`
	Y    float64          `json:"y"`
	Z    float64          `json:"z"`
}

// SceneFrom converts a snapshot, scaling position by scale.
func SceneFrom(s fusion.Snapshot, scale float64) Scene {
	return Scene{
		Pose: orientation.PoseFromRadians(s.Roll, s.Pitch, s.Yaw),
		X:    s.X * scale,
		Y:    s.Y * scale,
		Z:    s.Z * scale,
	}
}
