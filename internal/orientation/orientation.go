// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
)

// Pose is the orientation handed to consumers, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// PoseFromRadians converts fused angles to a display Pose.
func PoseFromRadians(roll, pitch, yaw float64) Pose {
	return Pose{
		Roll:  roll * 180.0 / math.Pi,
		Pitch: pitch * 180.0 / math.Pi,
		Yaw:   yaw * 180.0 / math.Pi,
	}
}

// TiltFromAccel computes roll and pitch (radians) from an accelerometer
// reading in any unit. Only valid while gravity dominates the reading.
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func TiltFromAccel(ax, ay, az float64) (roll, pitch float64) {
	roll = math.Atan2(ay, az)
	pitch = math.Atan2(-ax, math.Sqrt(ay*ay+az*az))
	return roll, pitch
}
