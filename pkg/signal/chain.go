package signal

import (
	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DrawMode selects between a random realisation of the stochastic contributors and their mean
type DrawMode int

const (
	// Random draws from the seeded stochastic contributors
	Random DrawMode = iota
	// Expected uses the mean of every stochastic contributor
	Expected
)

func (m DrawMode) String() string {
	if m == Expected {
		return "expected"
	}
	return "random"
}

// Link is a transmitter/receiver pair; RxID keys per-receiver state such as the shadowing field
type Link struct {
	Tx   model.Position
	Rx   model.Position
	RxID string
}

// LossFunc adds a contributor's loss in dB to the loss accumulated so far
type LossFunc func(link Link, mode DrawMode, lossDb float64) float64

// Chain is an ordered list of loss contributors
type Chain struct {
	names        []string
	contributors map[string]LossFunc
}

// NewChain builds the contributor chain described by cfg. Disabled contributors are left out.
func NewChain(cfg model.PropagationConfig, buildings []model.Building, seed int64) (*Chain, error) {
	c := &Chain{contributors: make(map[string]LossFunc)}
	for _, name := range cfg.Chain {
		if _, ok := c.contributors[name]; ok {
			return nil, errors.NewInvalid("contributor %s listed twice", name)
		}
		switch name {
		case model.DistanceContributor:
			c.Append(name, NewLogDistance(cfg).Loss)
		case model.ShadowingContributor:
			if !cfg.Shadowing.Enabled {
				log.Debugf("Shadowing disabled, skipping contributor")
				continue
			}
			c.Append(name, NewCorrelatedShadowing(cfg.Shadowing, seed).Loss)
		case model.BuildingsContributor:
			if !cfg.Buildings.Enabled {
				log.Debugf("Buildings disabled, skipping contributor")
				continue
			}
			c.Append(name, NewBuildingPenetration(cfg.Buildings, buildings).Loss)
		default:
			return nil, errors.NewInvalid("unknown propagation contributor %q", name)
		}
	}
	if len(c.names) == 0 {
		return nil, errors.NewInvalid("propagation chain is empty")
	}
	log.Infof("Propagation chain: %v", c.names)
	return c, nil
}

// Append adds a contributor at the end of the chain
func (c *Chain) Append(name string, f LossFunc) {
	if c.contributors == nil {
		c.contributors = make(map[string]LossFunc)
	}
	if _, ok := c.contributors[name]; !ok {
		c.names = append(c.names, name)
	}
	c.contributors[name] = f
}

// ComputeLoss folds every contributor over the link, starting from 0 dB
func (c *Chain) ComputeLoss(link Link, mode DrawMode) float64 {
	loss := 0.0
	for _, name := range c.names {
		loss = c.contributors[name](link, mode, loss)
	}
	return loss
}

// Names returns the effective contributor order
func (c *Chain) Names() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}
