// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"sort"
	"sync"
	"time"

	"github.com/nfvri/lora-simulator/pkg/model"
	log "github.com/sirupsen/logrus"
)

// PacketRecord is the network-side view of one uplink: every gateway that captured it
type PacketRecord struct {
	Key             model.EventKey          `json:"key"`
	DeviceID        string                  `json:"deviceId"`
	SpreadingFactor model.SpreadingFactor   `json:"spreadingFactor"`
	Timestamp       time.Duration           `json:"timestamp"`
	Receptions      []model.ReceptionRecord `json:"receptions"`
}

// GatewayReception is a (gateway, received power) pair of a packet
type GatewayReception struct {
	GatewayID  string  `json:"gatewayId"`
	RxPowerDbm float64 `json:"rxPowerDbm"`
}

// Gateways returns the gateways that captured the packet with their received power, in gateway id order
func (p *PacketRecord) Gateways() []GatewayReception {
	gateways := make([]GatewayReception, 0, len(p.Receptions))
	for _, r := range p.Receptions {
		gateways = append(gateways, GatewayReception{GatewayID: r.GatewayID, RxPowerDbm: r.RxPowerDbm})
	}
	return gateways
}

func (p *PacketRecord) clone() *PacketRecord {
	c := *p
	c.Receptions = make([]model.ReceptionRecord, len(p.Receptions))
	copy(c.Receptions, p.Receptions)
	return &c
}

// merge keeps one reception per gateway, the strongest one
func (p *PacketRecord) merge(captured []model.ReceptionRecord) {
	for _, r := range captured {
		i := sort.Search(len(p.Receptions), func(i int) bool { return p.Receptions[i].GatewayID >= r.GatewayID })
		switch {
		case i < len(p.Receptions) && p.Receptions[i].GatewayID == r.GatewayID:
			if r.RxPowerDbm > p.Receptions[i].RxPowerDbm {
				p.Receptions[i] = r
			}
		default:
			p.Receptions = append(p.Receptions, model.ReceptionRecord{})
			copy(p.Receptions[i+1:], p.Receptions[i:])
			p.Receptions[i] = r
		}
	}
}

// NetworkStatus combines the receptions of all gateways into one record per uplink.
// It has a single writer; reads may come from other goroutines.
type NetworkStatus struct {
	mu       sync.RWMutex
	packets  map[model.EventKey]*PacketRecord
	received map[string][]*PacketRecord
	lost     map[string]int
	lostKeys map[model.EventKey]struct{}
	devices  map[string]struct{}
}

// Snapshot is a point-in-time copy of a NetworkStatus
type Snapshot struct {
	Received map[string][]*PacketRecord `json:"received"`
	Lost     map[string]int             `json:"lost"`
}

func NewNetworkStatus() *NetworkStatus {
	return &NetworkStatus{
		packets:  make(map[model.EventKey]*PacketRecord),
		received: make(map[string][]*PacketRecord),
		lost:     make(map[string]int),
		lostKeys: make(map[model.EventKey]struct{}),
		devices:  make(map[string]struct{}),
	}
}

// Ingest records the captured receptions of event. Receptions of an uplink already known are
// merged into its record. An uplink counts as lost while none of its transmissions was captured.
func (s *NetworkStatus) Ingest(event model.UplinkEvent, captured []model.ReceptionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := event.Key()
	s.devices[event.DeviceID] = struct{}{}
	if len(captured) == 0 {
		_, received := s.packets[key]
		_, lost := s.lostKeys[key]
		if !received && !lost {
			s.lostKeys[key] = struct{}{}
			s.lost[event.DeviceID]++
			log.Debugf("Packet %s lost", key)
		}
		return
	}

	if _, ok := s.lostKeys[key]; ok {
		delete(s.lostKeys, key)
		s.lost[event.DeviceID]--
	}
	if record, ok := s.packets[key]; ok {
		record.merge(captured)
		log.Debugf("Merged %d receptions into packet %s", len(captured), key)
		return
	}

	record := &PacketRecord{
		Key:             key,
		DeviceID:        event.DeviceID,
		SpreadingFactor: event.SpreadingFactor,
		Timestamp:       event.Timestamp,
	}
	record.merge(captured)
	s.packets[key] = record

	// arrival order
	list := append(s.received[event.DeviceID], record)
	for i := len(list) - 1; i > 0 && list[i-1].Timestamp > list[i].Timestamp; i-- {
		list[i-1], list[i] = list[i], list[i-1]
	}
	s.received[event.DeviceID] = list
}

// GetReceivedPackets returns copies of the packets of deviceID in arrival order
func (s *NetworkStatus) GetReceivedPackets(deviceID string) []*PacketRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	packets := make([]*PacketRecord, 0, len(s.received[deviceID]))
	for _, p := range s.received[deviceID] {
		packets = append(packets, p.clone())
	}
	return packets
}

// GetPacket returns a copy of the packet identified by key
func (s *NetworkStatus) GetPacket(key model.EventKey) (*PacketRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packets[key]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// GetBestReception returns the reception with the highest received power; ties go to the lowest gateway id
func GetBestReception(record *PacketRecord) (model.ReceptionRecord, bool) {
	if record == nil || len(record.Receptions) == 0 {
		return model.ReceptionRecord{}, false
	}
	best := record.Receptions[0]
	for _, r := range record.Receptions[1:] {
		if r.RxPowerDbm > best.RxPowerDbm {
			best = r
		}
	}
	return best, true
}

// LostPackets returns how many distinct uplinks of deviceID no gateway captured
func (s *NetworkStatus) LostPackets(deviceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lost[deviceID]
}

// ReceivedPackets returns how many distinct uplinks of deviceID were captured
func (s *NetworkStatus) ReceivedPackets(deviceID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.received[deviceID])
}

// DeviceIDs returns every device seen so far, sorted
func (s *NetworkStatus) DeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Totals returns the number of received and lost uplinks over all devices
func (s *NetworkStatus) Totals() (received, lost int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.lost {
		lost += n
	}
	return len(s.packets), lost
}

// Snapshot returns a deep copy of the status
func (s *NetworkStatus) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := &Snapshot{
		Received: make(map[string][]*PacketRecord, len(s.devices)),
		Lost:     make(map[string]int, len(s.devices)),
	}
	for id := range s.devices {
		packets := make([]*PacketRecord, 0, len(s.received[id]))
		for _, p := range s.received[id] {
			packets = append(packets, p.clone())
		}
		snapshot.Received[id] = packets
		snapshot.Lost[id] = s.lost[id]
	}
	return snapshot
}
