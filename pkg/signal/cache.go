package signal

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type gridCorner struct {
	i, j int64
}

// shadowCache keeps per-receiver grid draws. A receiver's map is purged once it
// outgrows the bound; draws are reproducible so a purge only costs recomputation.
type shadowCache struct {
	mu    sync.Mutex
	size  int
	draws map[string]map[gridCorner]float64
}

func newShadowCache(size int) *shadowCache {
	return &shadowCache{
		size:  size,
		draws: make(map[string]map[gridCorner]float64),
	}
}

func (c *shadowCache) getOrCompute(rxID string, corner gridCorner, draw func() float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	rx, ok := c.draws[rxID]
	if !ok {
		rx = make(map[gridCorner]float64)
		c.draws[rxID] = rx
	}
	if v, ok := rx[corner]; ok {
		return v
	}
	v := draw()
	if c.size > 0 && len(rx) >= c.size {
		log.Debugf("Purging shadowing cache of %s (%d draws)", rxID, len(rx))
		rx = make(map[gridCorner]float64)
		c.draws[rxID] = rx
	}
	rx[corner] = v
	return v
}

func (c *shadowCache) len(rxID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.draws[rxID])
}
