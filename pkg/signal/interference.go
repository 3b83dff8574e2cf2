package signal

import (
	"sort"
	"time"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/utils"
	log "github.com/sirupsen/logrus"
)

type channelKey struct {
	gatewayID string
	frequency uint32
	sf        model.SpreadingFactor
}

type activeTransmission struct {
	start      time.Duration
	end        time.Duration
	rxPowerDbm float64
	record     *model.ReceptionRecord
}

// CaptureTracker applies the capture effect between overlapping transmissions that
// share a gateway, a frequency and a spreading factor
type CaptureTracker struct {
	margin   float64
	tieBreak string
	channels map[channelKey][]*activeTransmission
}

func NewCaptureTracker(cfg model.CaptureConfig) *CaptureTracker {
	return &CaptureTracker{
		margin:   cfg.Margin,
		tieBreak: cfg.TieBreak,
		channels: make(map[channelKey][]*activeTransmission),
	}
}

// Add registers a reception lasting [start, end) and resolves it against every
// overlapping reception on the same channel. Every reception interferes, captured
// or not; only captured records can be flipped to Interfered.
// It returns the summed power of the overlapping receptions, -Inf when there are none.
func (t *CaptureTracker) Add(gatewayID string, frequency uint32, sf model.SpreadingFactor, start, end time.Duration, record *model.ReceptionRecord) float64 {
	key := channelKey{gatewayID: gatewayID, frequency: frequency, sf: sf}
	active := t.prune(key, start)

	incoming := &activeTransmission{start: start, end: end, rxPowerDbm: record.RxPowerDbm, record: record}
	interferers := make([]float64, 0, len(active))
	for _, other := range active {
		if other.end <= start || other.start >= end {
			continue
		}
		interferers = append(interferers, other.rxPowerDbm)
		diff := incoming.rxPowerDbm - other.rxPowerDbm
		switch {
		case diff >= t.margin:
			interfere(other.record)
		case -diff >= t.margin:
			interfere(incoming.record)
		case t.tieBreak == model.TieBreakEarliest:
			interfere(incoming.record)
		default:
			interfere(incoming.record)
			interfere(other.record)
		}
	}

	active = append(active, incoming)
	sort.SliceStable(active, func(i, j int) bool { return active[i].start < active[j].start })
	t.channels[key] = active
	return utils.SumDbm(interferers...)
}

// prune drops transmissions that ended at or before now
func (t *CaptureTracker) prune(key channelKey, now time.Duration) []*activeTransmission {
	active := t.channels[key]
	kept := active[:0]
	for _, a := range active {
		if a.end > now {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(active); i++ {
		active[i] = nil
	}
	if len(kept) == 0 {
		delete(t.channels, key)
		return nil
	}
	return kept
}

// Active returns the number of transmissions still on air at the given channel
func (t *CaptureTracker) Active(gatewayID string, frequency uint32, sf model.SpreadingFactor) int {
	return len(t.channels[channelKey{gatewayID: gatewayID, frequency: frequency, sf: sf}])
}

func interfere(record *model.ReceptionRecord) {
	if !record.Captured {
		return
	}
	log.Debugf("%s lost at %s to interference", record.Event, record.GatewayID)
	record.Captured = false
	record.Outcome = model.Interfered
}
