package signal

import (
	"math"
	"time"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/onosproject/onos-lib-go/pkg/errors"
)

// LinkBudget compares received power against the gateway sensitivity table
type LinkBudget struct {
	sensitivity    map[model.SpreadingFactor]float64
	bandwidth      int
	codingRate     int
	preambleLength int
}

func NewLinkBudget(cfg model.LinkBudgetConfig) (*LinkBudget, error) {
	if err := model.ValidateSensitivity(cfg.Sensitivity); err != nil {
		return nil, err
	}
	if cfg.Bandwidth <= 0 {
		return nil, errors.NewInvalid("bandwidth must be positive, got %d", cfg.Bandwidth)
	}
	lb := &LinkBudget{
		sensitivity:    make(map[model.SpreadingFactor]float64, len(cfg.Sensitivity)),
		bandwidth:      cfg.Bandwidth,
		codingRate:     cfg.CodingRate,
		preambleLength: cfg.PreambleLength,
	}
	for sf, s := range cfg.Sensitivity {
		lb.sensitivity[model.SpreadingFactor(sf)] = s
	}
	return lb, nil
}

// ForGateway returns the budget of gw, applying its sensitivity overrides
func (lb *LinkBudget) ForGateway(gw model.Gateway) (*LinkBudget, error) {
	if len(gw.Sensitivity) == 0 {
		return lb, nil
	}
	table := make(map[int]float64, len(lb.sensitivity))
	for sf, s := range lb.sensitivity {
		table[int(sf)] = s
	}
	for sf, s := range gw.Sensitivity {
		table[sf] = s
	}
	budget, err := NewLinkBudget(model.LinkBudgetConfig{
		Sensitivity:    table,
		Bandwidth:      lb.bandwidth,
		CodingRate:     lb.codingRate,
		PreambleLength: lb.preambleLength,
	})
	if err != nil {
		return nil, errors.NewInvalid("gateway %s: %v", gw.ID, err)
	}
	return budget, nil
}

// Sensitivity returns the minimum received power decodable at sf
func (lb *LinkBudget) Sensitivity(sf model.SpreadingFactor) (float64, error) {
	s, ok := lb.sensitivity[sf]
	if !ok {
		return 0, errors.NewInvalid("no sensitivity configured for %s", sf)
	}
	return s, nil
}

// Evaluate returns the received power and whether it clears the sensitivity of sf
func (lb *LinkBudget) Evaluate(txPowerDbm, lossDb float64, sf model.SpreadingFactor) (float64, bool, error) {
	rxPower := txPowerDbm - lossDb
	s, err := lb.Sensitivity(sf)
	if err != nil {
		return rxPower, false, err
	}
	return rxPower, rxPower >= s, nil
}

// MinimumSpreadingFactor returns the fastest spreading factor decodable at rxPowerDbm
func (lb *LinkBudget) MinimumSpreadingFactor(rxPowerDbm float64) (model.SpreadingFactor, bool) {
	for _, sf := range model.SpreadingFactors() {
		if rxPowerDbm >= lb.sensitivity[sf] {
			return sf, true
		}
	}
	return model.MaxSpreadingFactor, false
}

// TimeOnAir returns the airtime of an explicit-header, CRC-protected LoRa frame
// (Semtech SX1272/3/6/7/8 AN1200.13). Low data rate optimisation is on when a
// symbol lasts 16 ms or more.
func (lb *LinkBudget) TimeOnAir(sf model.SpreadingFactor, payloadSize int) time.Duration {
	const (
		crc            = 1
		headerImplicit = 0
	)
	bw := float64(lb.bandwidth)
	tSym := math.Pow(2, float64(sf)) / bw
	de := 0.0
	if tSym >= 0.016 {
		de = 1
	}
	tPreamble := (float64(lb.preambleLength) + 4.25) * tSym

	num := float64(8*payloadSize - 4*int(sf) + 28 + 16*crc - 20*headerImplicit)
	den := 4 * (float64(sf) - 2*de)
	payloadSymbols := 8 + math.Max(math.Ceil(num/den)*float64(lb.codingRate+4), 0)

	seconds := tPreamble + payloadSymbols*tSym
	return time.Duration(math.Round(seconds * float64(time.Second)))
}
