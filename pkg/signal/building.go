package signal

import (
	"strings"

	"github.com/nfvri/lora-simulator/pkg/model"
)

// BuildingPenetration adds a per-wall loss for every building wall crossed by the link
type BuildingPenetration struct {
	buildings    []model.Building
	perWallLoss  float64
	wallTypeLoss map[string]float64
}

func NewBuildingPenetration(cfg model.BuildingsConfig, buildings []model.Building) *BuildingPenetration {
	wallTypeLoss := make(map[string]float64, len(cfg.WallTypeLoss))
	// viper lower-cases map keys, match wall types case-insensitively
	for wallType, loss := range cfg.WallTypeLoss {
		wallTypeLoss[strings.ToLower(wallType)] = loss
	}
	return &BuildingPenetration{
		buildings:    buildings,
		perWallLoss:  cfg.PerWallLoss,
		wallTypeLoss: wallTypeLoss,
	}
}

func (b *BuildingPenetration) Loss(link Link, _ DrawMode, lossDb float64) float64 {
	for _, bld := range b.buildings {
		if walls := CountWalls(link.Tx, link.Rx, bld); walls > 0 {
			lossDb += float64(walls) * b.WallLoss(bld.WallType)
		}
	}
	return lossDb
}

// WallLoss returns the loss of one wall of the given type
func (b *BuildingPenetration) WallLoss(wallType string) float64 {
	if loss, ok := b.wallTypeLoss[strings.ToLower(wallType)]; ok {
		return loss
	}
	return b.perWallLoss
}

// CountWalls returns how many walls of bld the segment tx->rx crosses below the roof.
// An end point inside the footprint crosses exactly one wall to get out.
func CountWalls(tx, rx model.Position, bld model.Building) int {
	txIn, rxIn := bld.Contains(tx), bld.Contains(rx)
	switch {
	case txIn && rxIn:
		return 0
	case txIn || rxIn:
		return 1
	}

	walls := 0
	dx, dy, dz := rx.X-tx.X, rx.Y-tx.Y, rx.Z-tx.Z
	crosses := func(t float64, alongMin, alongMax float64, along func(t float64) float64) bool {
		if t <= 0 || t >= 1 {
			return false
		}
		a := along(t)
		return a >= alongMin && a <= alongMax && tx.Z+t*dz <= bld.Height
	}
	y := func(t float64) float64 { return tx.Y + t*dy }
	x := func(t float64) float64 { return tx.X + t*dx }
	if dx != 0 {
		for _, wx := range []float64{bld.XMin, bld.XMax} {
			if crosses((wx-tx.X)/dx, bld.YMin, bld.YMax, y) {
				walls++
			}
		}
	}
	if dy != 0 {
		for _, wy := range []float64{bld.YMin, bld.YMax} {
			if crosses((wy-tx.Y)/dy, bld.XMin, bld.XMax, x) {
				walls++
			}
		}
	}
	return walls
}
