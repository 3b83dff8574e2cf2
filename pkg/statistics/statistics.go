package statistics

import (
	"math"
	"sort"
	"sync"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/status"
	"github.com/nfvri/lora-simulator/pkg/utils"
	"gonum.org/v1/gonum/stat"
)

// ReceivedProbability calculates the packet delivery ratio of a device or network.
func ReceivedProbability(received, lost int) float64 {
	if received+lost == 0 {
		return 0
	}
	return float64(received) / float64(received+lost)
}

// GatewaysPerPacket calculates the mean number of gateways that captured each received packet.
func GatewaysPerPacket(packets []*status.PacketRecord) float64 {
	if len(packets) == 0 {
		return 0
	}
	counts := make([]float64, len(packets))
	for i, p := range packets {
		counts[i] = float64(len(p.Receptions))
	}
	return stat.Mean(counts, nil)
}

// RxPowerStats summarizes the received power of the packets captured by one gateway
type RxPowerStats struct {
	Count   int     `json:"count"`
	MeanDbm float64 `json:"meanDbm"`
	// StdDevDb is the sample standard deviation in dB, 0 below two samples
	StdDevDb float64 `json:"stdDevDb"`
	// LinearMeanDbm averages in milliwatts
	LinearMeanDbm float64 `json:"linearMeanDbm"`
	MinDbm        float64 `json:"minDbm"`
	MaxDbm        float64 `json:"maxDbm"`
}

// RxPowerByGateway calculates the received power statistics of every gateway over packets.
func RxPowerByGateway(packets []*status.PacketRecord) map[string]RxPowerStats {
	samples := make(map[string][]float64)
	for _, p := range packets {
		for _, r := range p.Receptions {
			samples[r.GatewayID] = append(samples[r.GatewayID], r.RxPowerDbm)
		}
	}

	stats := make(map[string]RxPowerStats, len(samples))
	for gw, values := range samples {
		s := RxPowerStats{
			Count:   len(values),
			MeanDbm: stat.Mean(values, nil),
			MinDbm:  math.Inf(1),
			MaxDbm:  math.Inf(-1),
		}
		if len(values) > 1 {
			s.StdDevDb = stat.StdDev(values, nil)
		}
		mw := make([]float64, len(values))
		for i, v := range values {
			mw[i] = utils.DbmToMw(v)
			s.MinDbm = math.Min(s.MinDbm, v)
			s.MaxDbm = math.Max(s.MaxDbm, v)
		}
		s.LinearMeanDbm = utils.MwToDbm(stat.Mean(mw, nil))
		stats[gw] = s
	}
	return stats
}

// SFHistogram counts the devices per assigned spreading factor.
func SFHistogram(devices []model.EndDevice) map[model.SpreadingFactor]int {
	histogram := make(map[model.SpreadingFactor]int)
	for _, d := range devices {
		histogram[d.SpreadingFactor]++
	}
	return histogram
}

// OutcomeCounter counts reception outcomes per gateway
type OutcomeCounter struct {
	mu       sync.RWMutex
	counts   map[string]map[model.Outcome]int
	uplinks  int
	captured int
}

func NewOutcomeCounter() *OutcomeCounter {
	return &OutcomeCounter{counts: make(map[string]map[model.Outcome]int)}
}

// ObserveUplink counts the outcome of every record of an uplink
func (c *OutcomeCounter) ObserveUplink(_ model.UplinkEvent, records []model.ReceptionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uplinks++
	anyCaptured := false
	for _, r := range records {
		if c.counts[r.GatewayID] == nil {
			c.counts[r.GatewayID] = make(map[model.Outcome]int)
		}
		c.counts[r.GatewayID][r.Outcome]++
		anyCaptured = anyCaptured || r.Captured
	}
	if anyCaptured {
		c.captured++
	}
}

// Count returns how many uplinks ended with outcome at gatewayID
func (c *OutcomeCounter) Count(gatewayID string, outcome model.Outcome) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[gatewayID][outcome]
}

// Totals returns the outcome counts summed over gateways
func (c *OutcomeCounter) Totals() map[model.Outcome]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	totals := make(map[model.Outcome]int)
	for _, outcomes := range c.counts {
		for o, n := range outcomes {
			totals[o] += n
		}
	}
	return totals
}

// Gateways returns the gateways seen so far, sorted
func (c *OutcomeCounter) Gateways() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.counts))
	for id := range c.counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Uplinks returns the number of observed uplinks and how many of them at least one gateway captured
func (c *OutcomeCounter) Uplinks() (observed, captured int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uplinks, c.captured
}
