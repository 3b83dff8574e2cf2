// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0

package reception

import (
	"math"
	"sort"
	"time"

	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/signal"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Sink receives the captured receptions of every uplink once its transmission is over
type Sink interface {
	Ingest(event model.UplinkEvent, captured []model.ReceptionRecord)
}

// Observer is notified of every finalized uplink with the records of all gateways
type Observer interface {
	ObserveUplink(event model.UplinkEvent, records []model.ReceptionRecord)
}

type pendingUplink struct {
	event   model.UplinkEvent
	end     time.Duration
	records []*model.ReceptionRecord
}

// Engine evaluates uplink events, in timestamp order, at every gateway
type Engine struct {
	devices   map[string]*model.EndDevice
	gateways  []model.Gateway
	budgets   map[string]*signal.LinkBudget
	chain     *signal.Chain
	budget    *signal.LinkBudget
	tracker   *signal.CaptureTracker
	sink      Sink
	observers []Observer

	// ends of the transmissions holding a receive path, per gateway
	paths   map[string][]time.Duration
	pending []*pendingUplink
	last    time.Duration
	started bool
}

// NewEngine creates an engine over the devices and gateways of m
func NewEngine(m *model.Model, chain *signal.Chain, budget *signal.LinkBudget, tracker *signal.CaptureTracker, sink Sink, observers ...Observer) (*Engine, error) {
	e := &Engine{
		devices:   make(map[string]*model.EndDevice, len(m.Devices)),
		gateways:  make([]model.Gateway, len(m.Gateways)),
		budgets:   make(map[string]*signal.LinkBudget, len(m.Gateways)),
		chain:     chain,
		budget:    budget,
		tracker:   tracker,
		sink:      sink,
		observers: observers,
		paths:     make(map[string][]time.Duration),
	}
	for i := range m.Devices {
		e.devices[m.Devices[i].ID] = &m.Devices[i]
	}
	copy(e.gateways, m.Gateways)
	sort.Slice(e.gateways, func(i, j int) bool { return e.gateways[i].ID < e.gateways[j].ID })
	for _, gw := range e.gateways {
		lb, err := budget.ForGateway(gw)
		if err != nil {
			return nil, err
		}
		e.budgets[gw.ID] = lb
	}
	return e, nil
}

// Process evaluates event at every gateway and returns one record per gateway, in gateway id
// order. Records are final once the transmission has ended, that is after an event at or past
// its end time was processed or after Flush.
func (e *Engine) Process(event model.UplinkEvent) ([]*model.ReceptionRecord, error) {
	if e.started && event.Timestamp < e.last {
		return nil, errors.NewConflict("event %s at %v precedes last processed event at %v", event.Key(), event.Timestamp, e.last)
	}
	device, ok := e.devices[event.DeviceID]
	if !ok {
		return nil, errors.NewNotFound("event %s references unknown device %s", event.Key(), event.DeviceID)
	}
	event = resolve(event, device)
	if !event.SpreadingFactor.Valid() {
		return nil, errors.NewInvalid("event %s has no valid spreading factor", event.Key())
	}
	e.started = true
	e.last = event.Timestamp
	e.finalize(event.Timestamp)

	start := event.Timestamp
	end := start + e.budget.TimeOnAir(event.SpreadingFactor, event.PayloadSize)
	records := make([]*model.ReceptionRecord, 0, len(e.gateways))
	for _, gw := range e.gateways {
		link := signal.Link{Tx: device.Position, Rx: gw.Position, RxID: gw.ID}
		loss := e.chain.ComputeLoss(link, signal.Random)
		rxPower, above, err := e.budgets[gw.ID].Evaluate(*event.TxPowerDbm, loss, event.SpreadingFactor)
		if err != nil {
			return nil, err
		}
		record := &model.ReceptionRecord{
			Event:      event.Key(),
			GatewayID:  gw.ID,
			RxPowerDbm: rxPower,
		}
		switch {
		case device.OutOfRange:
			record.Outcome = model.OutOfRange
		case !above:
			record.Outcome = model.UnderSensitivity
		case !e.lockPath(gw, start, end):
			record.Outcome = model.NoMoreReceivers
		default:
			record.Captured = true
			record.Outcome = model.Received
		}
		interference := e.tracker.Add(gw.ID, event.Frequency, event.SpreadingFactor, start, end, record)
		log.Debugf("%s at %s: %.2f dBm (loss %.2f dB, interference %.2f dBm from %d on air) %s", event.Key(), gw.ID,
			rxPower, loss, interference, e.tracker.Active(gw.ID, event.Frequency, event.SpreadingFactor)-1, record.Outcome)
		records = append(records, record)
	}
	e.pending = append(e.pending, &pendingUplink{event: event, end: end, records: records})
	return records, nil
}

// Flush finalizes every pending uplink
func (e *Engine) Flush() {
	e.finalize(time.Duration(math.MaxInt64))
}

// Pending returns the number of uplinks still on air
func (e *Engine) Pending() int {
	return len(e.pending)
}

// finalize hands over every uplink whose transmission ended at or before now
func (e *Engine) finalize(now time.Duration) {
	kept := e.pending[:0]
	for _, p := range e.pending {
		if p.end > now {
			kept = append(kept, p)
			continue
		}
		all := make([]model.ReceptionRecord, 0, len(p.records))
		captured := make([]model.ReceptionRecord, 0, len(p.records))
		for _, r := range p.records {
			all = append(all, *r)
			if r.Captured {
				captured = append(captured, *r)
			}
		}
		if len(captured) == 0 {
			log.Debugf("%s lost at every gateway", p.event.Key())
		}
		if e.sink != nil {
			e.sink.Ingest(p.event, captured)
		}
		for _, o := range e.observers {
			o.ObserveUplink(p.event, all)
		}
	}
	for i := len(kept); i < len(e.pending); i++ {
		e.pending[i] = nil
	}
	e.pending = kept
}

// lockPath reserves a demodulator of gw for [start, end) if one is free
func (e *Engine) lockPath(gw model.Gateway, start, end time.Duration) bool {
	limit := gw.ReceivePaths
	if limit == 0 {
		limit = model.DefaultReceivePaths
	}
	busy := e.paths[gw.ID][:0]
	for _, until := range e.paths[gw.ID] {
		if until > start {
			busy = append(busy, until)
		}
	}
	if limit > 0 && len(busy) >= limit {
		e.paths[gw.ID] = busy
		return false
	}
	e.paths[gw.ID] = append(busy, end)
	return true
}

// resolve fills the spreading factor, tx power and frequency the event leaves to the device
func resolve(event model.UplinkEvent, device *model.EndDevice) model.UplinkEvent {
	if event.SpreadingFactor == 0 {
		event.SpreadingFactor = device.SpreadingFactor
	}
	if event.TxPowerDbm == nil {
		txPower := device.TxPowerDbm
		event.TxPowerDbm = &txPower
	}
	if event.Frequency == 0 {
		event.Frequency = model.DefaultFrequency
	}
	return event
}
