package signal

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/nfvri/lora-simulator/pkg/model"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// CorrelatedShadowing is a spatially correlated log-normal shadowing field, one per receiver.
// Every corner of a square grid of pitch d_c owns an N(0, sigma) draw; a transmitter position
// combines the four corners of its square bilinearly so that nearby transmitters share draws.
type CorrelatedShadowing struct {
	seed  int64
	dc    float64
	sigma float64
	cache *shadowCache
}

func NewCorrelatedShadowing(cfg model.ShadowingConfig, seed int64) *CorrelatedShadowing {
	return &CorrelatedShadowing{
		seed:  seed,
		dc:    cfg.CorrelationDistance,
		sigma: cfg.Sigma,
		cache: newShadowCache(cfg.CacheSize),
	}
}

func (s *CorrelatedShadowing) Loss(link Link, mode DrawMode, lossDb float64) float64 {
	if mode == Expected {
		return lossDb
	}
	return lossDb + s.GetShadowing(link.RxID, link.Tx)
}

// GetShadowing returns the field value of receiver rxID at position p
func (s *CorrelatedShadowing) GetShadowing(rxID string, p model.Position) float64 {
	if s.sigma == 0 {
		return 0
	}
	gx, gy := p.X/s.dc, p.Y/s.dc
	i, j := math.Floor(gx), math.Floor(gy)
	fx, fy := gx-i, gy-j

	weights := [4]float64{(1 - fx) * (1 - fy), fx * (1 - fy), (1 - fx) * fy, fx * fy}
	corners := [4]gridCorner{
		{int64(i), int64(j)},
		{int64(i) + 1, int64(j)},
		{int64(i), int64(j) + 1},
		{int64(i) + 1, int64(j) + 1},
	}

	value, norm := 0.0, 0.0
	for k, w := range weights {
		if w == 0 {
			continue
		}
		value += w * s.corner(rxID, corners[k])
		norm += w * w
	}
	// keeps the variance at sigma^2 anywhere inside the square
	return value / math.Sqrt(norm)
}

func (s *CorrelatedShadowing) corner(rxID string, c gridCorner) float64 {
	return s.cache.getOrCompute(rxID, c, func() float64 {
		normal := distuv.Normal{Mu: 0, Sigma: s.sigma, Src: rand.NewSource(cornerSeed(s.seed, rxID, c))}
		return normal.Rand()
	})
}

// cornerSeed gives each receiver and grid corner its own fixed seed
func cornerSeed(seed int64, rxID string, c gridCorner) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%s/%d/%d", seed, rxID, c.i, c.j)
	return h.Sum64()
}
