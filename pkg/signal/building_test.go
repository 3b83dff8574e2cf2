package signal

import (
	"testing"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestCountWalls(t *testing.T) {
	bld := model.Building{ID: "b", XMin: 0, XMax: 10, YMin: 0, YMax: 10, Height: 5}
	tests := []struct {
		name   string
		tx, rx model.Position
		walls  int
	}{
		{"through", model.Position{X: -10, Y: 5, Z: 1}, model.Position{X: 20, Y: 5, Z: 1}, 2},
		{"diagonal", model.Position{X: -5, Y: 1, Z: 1}, model.Position{X: 15, Y: 9, Z: 1}, 2},
		{"north to south", model.Position{X: 3, Y: -5, Z: 1}, model.Position{X: 6, Y: 15, Z: 1}, 2},
		{"miss", model.Position{X: -10, Y: 20, Z: 1}, model.Position{X: 20, Y: 20, Z: 1}, 0},
		{"short of building", model.Position{X: -10, Y: 5, Z: 1}, model.Position{X: -1, Y: 5, Z: 1}, 0},
		{"over the roof", model.Position{X: -10, Y: 5, Z: 10}, model.Position{X: 20, Y: 5, Z: 10}, 0},
		{"clears the far wall", model.Position{X: -10, Y: 5, Z: 0}, model.Position{X: 20, Y: 5, Z: 9}, 1},
		{"tx inside", model.Position{X: 5, Y: 5, Z: 1}, model.Position{X: 500, Y: 5, Z: 30}, 1},
		{"rx inside", model.Position{X: 500, Y: 5, Z: 1}, model.Position{X: 5, Y: 5, Z: 1}, 1},
		{"both inside", model.Position{X: 2, Y: 2, Z: 1}, model.Position{X: 8, Y: 8, Z: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.walls, CountWalls(tt.tx, tt.rx, bld))
		})
	}
}

func TestBuildingPenetrationLoss(t *testing.T) {
	cfg := model.DefaultModel().Propagation.Buildings
	buildings := []model.Building{
		{ID: "stone", XMin: 100, XMax: 120, YMin: -10, YMax: 10, Height: 20, WallType: "stoneBlocks"},
		{ID: "plain", XMin: 200, XMax: 220, YMin: -10, YMax: 10, Height: 20},
		{ID: "aside", XMin: 300, XMax: 320, YMin: 50, YMax: 70, Height: 20, WallType: "wood"},
	}
	b := NewBuildingPenetration(cfg, buildings)
	link := Link{Tx: model.Position{X: 500, Z: 1.5}, Rx: model.Position{Z: 15}}
	// 2 stone walls and 2 default walls
	assert.Equal(t, 3.0+2*12+2*10, b.Loss(link, Random, 3))

	assert.Equal(t, 12.0, b.WallLoss("STONEBLOCKS"))
	assert.Equal(t, 4.0, b.WallLoss("wood"))
	assert.Equal(t, 10.0, b.WallLoss("glass"))
}
