package allocation

import (
	"sort"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/signal"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

const (
	LINK_BUDGET = "LB"
	FIXED       = "FIXED"

	// bearing the coverage radii are reported along
	coverageBearing = 0.0
)

// GatewayLink is the expected link from a device to one gateway
type GatewayLink struct {
	GatewayID  string
	LossDb     float64
	RxPowerDbm float64
	Budget     *signal.LinkBudget
}

// AllocationStrategy picks the spreading factor of a device given its best-serving gateway.
// The second result reports that the device cannot be served.
type AllocationStrategy interface {
	Assign(device model.EndDevice, best GatewayLink) (model.SpreadingFactor, bool)
}

// ==========================================================
// LINK BUDGET
// ==========================================================

// LinkBudgetStrategy assigns the lowest spreading factor whose sensitivity the expected
// received power meets; devices meeting none get SF12 and are out of range
type LinkBudgetStrategy struct{}

func (LinkBudgetStrategy) Assign(_ model.EndDevice, best GatewayLink) (model.SpreadingFactor, bool) {
	sf, ok := best.Budget.MinimumSpreadingFactor(best.RxPowerDbm)
	return sf, !ok
}

// ==========================================================
// FIXED
// ==========================================================

// FixedStrategy assigns the same spreading factor to every device
type FixedStrategy struct {
	SpreadingFactor model.SpreadingFactor
}

func (s FixedStrategy) Assign(_ model.EndDevice, best GatewayLink) (model.SpreadingFactor, bool) {
	sensitivity, err := best.Budget.Sensitivity(s.SpreadingFactor)
	if err != nil {
		return s.SpreadingFactor, true
	}
	return s.SpreadingFactor, best.RxPowerDbm < sensitivity
}

// NewStrategy returns the strategy registered under name
func NewStrategy(name string, sf model.SpreadingFactor) (AllocationStrategy, error) {
	switch name {
	case LINK_BUDGET, "":
		return LinkBudgetStrategy{}, nil
	case FIXED:
		if !sf.Valid() {
			return nil, errors.NewInvalid("fixed allocation needs a spreading factor within SF7..SF12, got %d", sf)
		}
		return FixedStrategy{SpreadingFactor: sf}, nil
	}
	return nil, errors.NewInvalid("unknown allocation strategy %q", name)
}

// Allocation is the result of a spreading factor assignment
type Allocation struct {
	Assignments     map[string]model.SpreadingFactor `json:"assignments"`
	BestGateway     map[string]string                `json:"bestGateway"`
	OutOfRange      map[string]bool                  `json:"outOfRange"`
	Counts          map[model.SpreadingFactor]int    `json:"counts"`
	OutOfRangeCount int                              `json:"outOfRangeCount"`
	// CoverageRadius is the expected reach in metres of a typical device, per gateway and spreading factor
	CoverageRadius map[string]map[model.SpreadingFactor]float64 `json:"coverageRadius"`
}

// Allocator assigns spreading factors once, before any uplink is evaluated
type Allocator struct {
	chain    *signal.Chain
	budget   *signal.LinkBudget
	strategy AllocationStrategy
}

func NewAllocator(chain *signal.Chain, budget *signal.LinkBudget, strategy AllocationStrategy) *Allocator {
	if strategy == nil {
		strategy = LinkBudgetStrategy{}
	}
	return &Allocator{chain: chain, budget: budget, strategy: strategy}
}

// AssignAll assigns spreading factors with the link budget strategy
func AssignAll(devices []model.EndDevice, gateways []model.Gateway, chain *signal.Chain, budget *signal.LinkBudget) (*Allocation, error) {
	return NewAllocator(chain, budget, LinkBudgetStrategy{}).AssignAll(devices, gateways)
}

// AssignAll assigns every device a spreading factor from its expected link to the best-serving
// gateway, the one with the least expected loss, and writes the result back onto devices.
func (a *Allocator) AssignAll(devices []model.EndDevice, gateways []model.Gateway) (*Allocation, error) {
	sorted := make([]model.Gateway, len(gateways))
	copy(sorted, gateways)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	budgets := make(map[string]*signal.LinkBudget, len(sorted))
	for _, gw := range sorted {
		lb, err := a.budget.ForGateway(gw)
		if err != nil {
			return nil, err
		}
		budgets[gw.ID] = lb
	}

	allocation := &Allocation{
		Assignments:    make(map[string]model.SpreadingFactor, len(devices)),
		BestGateway:    make(map[string]string, len(devices)),
		OutOfRange:     make(map[string]bool, len(devices)),
		Counts:         make(map[model.SpreadingFactor]int),
		CoverageRadius: make(map[string]map[model.SpreadingFactor]float64),
	}
	for i := range devices {
		device := &devices[i]
		sf, outOfRange := model.MaxSpreadingFactor, true
		if best, ok := a.bestGateway(*device, sorted, budgets); ok {
			sf, outOfRange = a.strategy.Assign(*device, best)
			allocation.BestGateway[device.ID] = best.GatewayID
			log.Debugf("[LB] %s best served by %s at %.2f dBm", device.ID, best.GatewayID, best.RxPowerDbm)
		}
		device.SpreadingFactor = sf
		device.OutOfRange = outOfRange

		allocation.Assignments[device.ID] = sf
		allocation.OutOfRange[device.ID] = outOfRange
		if outOfRange {
			allocation.OutOfRangeCount++
			log.Warnf("[LB] %s cannot reach any gateway, assigned %s", device.ID, sf)
		} else {
			allocation.Counts[sf]++
		}
	}

	a.coverage(allocation, devices, sorted, budgets)
	log.Infof("[LB] Assigned %d devices: %v, %d out of range", len(devices), allocation.Counts, allocation.OutOfRangeCount)
	return allocation, nil
}

// bestGateway returns the gateway with the least expected loss; ties go to the lowest id
func (a *Allocator) bestGateway(device model.EndDevice, gateways []model.Gateway, budgets map[string]*signal.LinkBudget) (GatewayLink, bool) {
	var best GatewayLink
	found := false
	for _, gw := range gateways {
		loss := a.chain.ComputeLoss(signal.Link{Tx: device.Position, Rx: gw.Position, RxID: gw.ID}, signal.Expected)
		if !found || loss < best.LossDb {
			best = GatewayLink{
				GatewayID:  gw.ID,
				LossDb:     loss,
				RxPowerDbm: device.TxPowerDbm - loss,
				Budget:     budgets[gw.ID],
			}
			found = true
		}
	}
	return best, found
}

// coverage reports, per gateway and spreading factor, how far a device with the mean tx power reaches
func (a *Allocator) coverage(allocation *Allocation, devices []model.EndDevice, gateways []model.Gateway, budgets map[string]*signal.LinkBudget) {
	if len(devices) == 0 {
		return
	}
	txPowers := make([]float64, len(devices))
	heights := make([]float64, len(devices))
	for i, d := range devices {
		txPowers[i] = d.TxPowerDbm
		heights[i] = d.Position.Z
	}
	txPower, height := stat.Mean(txPowers, nil), stat.Mean(heights, nil)

	for _, gw := range gateways {
		radii := make(map[model.SpreadingFactor]float64)
		for _, sf := range model.SpreadingFactors() {
			sensitivity, err := budgets[gw.ID].Sensitivity(sf)
			if err != nil {
				continue
			}
			r, err := signal.CoverageRadius(a.chain, gw, coverageBearing, height, txPower, sensitivity)
			if err != nil {
				log.Warn(err)
				continue
			}
			radii[sf] = r
		}
		allocation.CoverageRadius[gw.ID] = radii
		log.Debugf("[LB] %s coverage radius: %v", gw.ID, radii)
	}
}
