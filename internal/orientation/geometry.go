// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/golang/geo/r3"
)

// LowPass blends prev toward next by alpha (exponential smoothing).
// For alpha in [0,1] the result lies between prev and next.
func LowPass(prev, next, alpha float64) float64 {
	return prev + alpha*(next-prev)
}

// Matrix3 is a row-major 3x3 matrix.
type Matrix3 [3][3]float64

// RotationMatrix builds the Z-Y-X (yaw, pitch, roll) rotation that maps a
// device-frame vector into the world frame. Angles are in radians.
//
//	| cy*cp   cy*sp*sr - sy*cr   cy*sp*cr + sy*sr |
//	| sy*cp   sy*sp*sr + cy*cr   sy*sp*cr - cy*sr |
//	| -sp     cp*sr              cp*cr            |
func RotationMatrix(roll, pitch, yaw float64) Matrix3 {
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)

	return Matrix3{
		{cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr},
		{sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr},
		{-sp, cp * sr, cp * cr},
	}
}

// Apply returns m·v.
func (m Matrix3) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Col returns column i as a vector.
func (m Matrix3) Col(i int) r3.Vector {
	return r3.Vector{X: m[0][i], Y: m[1][i], Z: m[2][i]}
}
