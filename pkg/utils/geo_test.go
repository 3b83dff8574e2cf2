// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0
//

package utils

import (
	"testing"

	"github.com/nfvri/lora-simulator/pkg/model"
	"gotest.tools/assert"
)

func Test_TargetPoint(t *testing.T) {
	origin := model.Position{X: 10, Y: 20, Z: 30}
	tests := []struct {
		name     string
		bearing  float64
		expected model.Position
	}{
		{name: "north", bearing: 0, expected: model.Position{X: 10, Y: 120, Z: 1.5}},
		{name: "east", bearing: 90, expected: model.Position{X: 110, Y: 20, Z: 1.5}},
		{name: "south", bearing: 180, expected: model.Position{X: 10, Y: -80, Z: 1.5}},
		{name: "west", bearing: 270, expected: model.Position{X: -90, Y: 20, Z: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := TargetPoint(origin, tt.bearing, 100, 1.5)
			assert.Equal(t, tt.expected.X, RoundToDecimal(p.X, 6))
			assert.Equal(t, tt.expected.Y, RoundToDecimal(p.Y, 6))
			assert.Equal(t, tt.expected.Z, p.Z)
			assert.Equal(t, 100.0, RoundToDecimal(origin.Distance2D(p), 6))
		})
	}
}

func Test_Bearing(t *testing.T) {
	c := model.Position{}
	assert.Equal(t, 45.0, RoundToDecimal(Bearing(c, model.Position{X: 1, Y: 1}), 6))
	assert.Equal(t, 135.0, RoundToDecimal(Bearing(c, model.Position{X: 1, Y: -1}), 6))
	assert.Equal(t, 225.0, RoundToDecimal(Bearing(c, model.Position{X: -1, Y: -1}), 6))
	assert.Equal(t, 315.0, RoundToDecimal(Bearing(c, model.Position{X: -1, Y: 1}), 6))
}

func Test_SortPositionsByBearing(t *testing.T) {
	c := model.Position{}
	in := []model.Position{{X: -1, Y: 1}, {X: 1, Y: -1}, {X: 0, Y: 1}, {X: 1, Y: 0}}
	out := SortPositionsByBearing(c, in)
	assert.DeepEqual(t, []model.Position{{X: 0, Y: 1}, {X: 1, Y: 0}, {X: 1, Y: -1}, {X: -1, Y: 1}}, out)
	// input untouched
	assert.Equal(t, -1.0, in[0].X)
}
