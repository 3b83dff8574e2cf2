// SPDX-FileCopyrightText: 2021-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0
//

package utils

import (
	"math"
	"sort"

	"github.com/nfvri/lora-simulator/pkg/model"
)

// TargetPoint returns the position dist metres away from p along bearing (degrees clockwise from +Y), at height z
func TargetPoint(p model.Position, bearing float64, dist float64, z float64) model.Position {
	azimuth := toRadians(bearing)
	return model.Position{
		X: p.X + dist*math.Sin(azimuth),
		Y: p.Y + dist*math.Cos(azimuth),
		Z: z,
	}
}

// Bearing returns the bearing from p1 to p2 in degrees within [0, 360)
func Bearing(p1 model.Position, p2 model.Position) float64 {
	theta := math.Atan2(p2.X-p1.X, p2.Y-p1.Y)
	return math.Mod(toDegrees(theta)+360, 360.0)
}

// toRadians converts degrees to radians.
func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// toDegrees converts radians to degrees.
func toDegrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// SortPositionsByBearing orders positions clockwise around center
func SortPositionsByBearing(center model.Position, positions []model.Position) []model.Position {
	sorted := make([]model.Position, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Bearing(center, sorted[i]) < Bearing(center, sorted[j])
	})
	return sorted
}
