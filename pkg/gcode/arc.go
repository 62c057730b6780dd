// Arc length of G2/G3 moves in the XY plane
//
// The angular travel follows planArc() from Marlin as used by klipper's
// gcode_arcs module.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import "math"

// ArcLength returns the helical path length of an arc from start to end
// around start+(i,j). A zero angular travel with identical endpoints is a
// full circle.
func ArcLength(start, end Position, i, j float64, clockwise bool) float64 {
	rP, rQ := -i, -j
	centerP := start[X] - rP
	centerQ := start[Y] - rQ
	rtAlpha := end[X] - centerP
	rtBeta := end[Y] - centerQ
	linear := end[Z] - start[Z]

	angular := math.Atan2(rP*rtBeta-rQ*rtAlpha, rP*rtAlpha+rQ*rtBeta)
	if angular < 0 {
		angular += 2 * math.Pi
	}
	if clockwise {
		angular -= 2 * math.Pi
	}
	if angular == 0 && start[X] == end[X] && start[Y] == end[Y] {
		angular = 2 * math.Pi
	}

	flat := math.Hypot(rP, rQ) * angular
	if linear == 0 {
		return math.Abs(flat)
	}
	return math.Hypot(flat, linear)
}
