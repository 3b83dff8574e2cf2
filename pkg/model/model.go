// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"fmt"
	"math"
	"time"

	"github.com/onosproject/onos-lib-go/pkg/errors"
)

const (
	// DefaultFrequency is the EU868 uplink channel used when an event names none.
	DefaultFrequency uint32 = 868100000
	// DefaultReceivePaths is the SX1301 demodulator count
	DefaultReceivePaths = 8
)

// Model simulation model
type Model struct {
	Devices     []EndDevice       `mapstructure:"devices" yaml:"devices"`
	Gateways    []Gateway         `mapstructure:"gateways" yaml:"gateways"`
	Buildings   []Building        `mapstructure:"buildings" yaml:"buildings"`
	Events      []UplinkEvent     `mapstructure:"events" yaml:"events"`
	Propagation PropagationConfig `mapstructure:"propagation" yaml:"propagation"`
	LinkBudget  LinkBudgetConfig  `mapstructure:"linkBudget" yaml:"linkBudget"`
	Capture     CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Seed        int64             `mapstructure:"seed" yaml:"seed"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
}

// Position is a Cartesian location in metres
type Position struct {
	X float64 `mapstructure:"x" yaml:"x"`
	Y float64 `mapstructure:"y" yaml:"y"`
	Z float64 `mapstructure:"z" yaml:"z"`
}

// Distance returns the 3-D euclidean distance to p2
func (p Position) Distance(p2 Position) float64 {
	return math.Sqrt(math.Pow(p.X-p2.X, 2) + math.Pow(p.Y-p2.Y, 2) + math.Pow(p.Z-p2.Z, 2))
}

// Distance2D returns the distance to p2 projected on the ground plane
func (p Position) Distance2D(p2 Position) float64 {
	return math.Hypot(p.X-p2.X, p.Y-p2.Y)
}

// SpreadingFactor is the LoRa chirp spreading factor
type SpreadingFactor uint8

const (
	SF7  SpreadingFactor = 7
	SF8  SpreadingFactor = 8
	SF9  SpreadingFactor = 9
	SF10 SpreadingFactor = 10
	SF11 SpreadingFactor = 11
	SF12 SpreadingFactor = 12

	MinSpreadingFactor = SF7
	MaxSpreadingFactor = SF12
)

// SpreadingFactors lists the usable spreading factors from fastest to most robust
func SpreadingFactors() []SpreadingFactor {
	return []SpreadingFactor{SF7, SF8, SF9, SF10, SF11, SF12}
}

// Valid reports whether sf is within SF7..SF12
func (sf SpreadingFactor) Valid() bool {
	return sf >= MinSpreadingFactor && sf <= MaxSpreadingFactor
}

// DataRate returns the EU868 data rate index at 125 kHz (DR0 = SF12)
func (sf SpreadingFactor) DataRate() int {
	return int(MaxSpreadingFactor - sf)
}

func (sf SpreadingFactor) String() string {
	return fmt.Sprintf("SF%d", uint8(sf))
}

// EndDevice is a LoRaWAN class A device at a fixed position
type EndDevice struct {
	ID              string          `mapstructure:"id" yaml:"id"`
	Position        Position        `mapstructure:"position" yaml:"position"`
	TxPowerDbm      float64         `mapstructure:"txPowerDbm" yaml:"txPowerDbm"`
	SpreadingFactor SpreadingFactor `mapstructure:"spreadingFactor" yaml:"spreadingFactor"`
	OutOfRange      bool            `mapstructure:"outOfRange" yaml:"outOfRange"`
}

// Gateway is a multi-channel LoRa receiver
type Gateway struct {
	ID       string   `mapstructure:"id" yaml:"id"`
	Position Position `mapstructure:"position" yaml:"position"`
	// ReceivePaths is the number of parallel demodulators, negative means unlimited
	ReceivePaths int `mapstructure:"receivePaths" yaml:"receivePaths"`
	// Sensitivity overrides entries of the shared sensitivity table, keyed by SF
	Sensitivity map[int]float64 `mapstructure:"sensitivity" yaml:"sensitivity"`
}

// Building is an axis-aligned footprint that attenuates links crossing its walls
type Building struct {
	ID       string  `mapstructure:"id" yaml:"id"`
	XMin     float64 `mapstructure:"xMin" yaml:"xMin"`
	XMax     float64 `mapstructure:"xMax" yaml:"xMax"`
	YMin     float64 `mapstructure:"yMin" yaml:"yMin"`
	YMax     float64 `mapstructure:"yMax" yaml:"yMax"`
	Height   float64 `mapstructure:"height" yaml:"height"`
	WallType string  `mapstructure:"wallType" yaml:"wallType"`
}

// Contains reports whether p lies inside the footprint and below the roof
func (b Building) Contains(p Position) bool {
	return p.X > b.XMin && p.X < b.XMax && p.Y > b.YMin && p.Y < b.YMax && p.Z <= b.Height
}

// UplinkEvent is a single uplink transmission scheduled by the traffic layer.
// Sequence 0 means the frame carries no counter. A nil TxPowerDbm uses the device power.
type UplinkEvent struct {
	DeviceID        string          `mapstructure:"deviceId" yaml:"deviceId"`
	Sequence        uint32          `mapstructure:"sequence" yaml:"sequence"`
	Timestamp       time.Duration   `mapstructure:"timestamp" yaml:"timestamp"`
	SpreadingFactor SpreadingFactor `mapstructure:"spreadingFactor" yaml:"spreadingFactor"`
	PayloadSize     int             `mapstructure:"payloadSize" yaml:"payloadSize"`
	TxPowerDbm      *float64        `mapstructure:"txPowerDbm" yaml:"txPowerDbm"`
	Frequency       uint32          `mapstructure:"frequency" yaml:"frequency"`
}

// Key returns the identity of the logical uplink: the sequence counter when the
// frame has one, the transmission timestamp otherwise
func (e UplinkEvent) Key() EventKey {
	if e.Sequence != 0 {
		return EventKey{DeviceID: e.DeviceID, Sequence: e.Sequence}
	}
	return EventKey{DeviceID: e.DeviceID, Timestamp: e.Timestamp}
}

// EventKey identifies a logical uplink; retransmissions of a frame share it
type EventKey struct {
	DeviceID  string        `json:"deviceId"`
	Sequence  uint32        `json:"sequence,omitempty"`
	Timestamp time.Duration `json:"timestamp,omitempty"`
}

func (k EventKey) String() string {
	if k.Sequence == 0 {
		return fmt.Sprintf("%s@%v", k.DeviceID, k.Timestamp)
	}
	return fmt.Sprintf("%s/%d", k.DeviceID, k.Sequence)
}

// Outcome is the fate of one uplink at one gateway
type Outcome int

const (
	Received Outcome = iota
	UnderSensitivity
	Interfered
	NoMoreReceivers
	OutOfRange
)

func (o Outcome) String() string {
	switch o {
	case Received:
		return "received"
	case UnderSensitivity:
		return "under_sensitivity"
	case Interfered:
		return "interfered"
	case NoMoreReceivers:
		return "no_more_receivers"
	case OutOfRange:
		return "out_of_range"
	}
	return "unknown"
}

// ReceptionRecord is the evaluation of one uplink at one gateway
type ReceptionRecord struct {
	Event      EventKey `json:"event"`
	GatewayID  string   `json:"gatewayId"`
	RxPowerDbm float64  `json:"rxPowerDbm"`
	Captured   bool     `json:"captured"`
	Outcome    Outcome  `json:"outcome"`
}

// PropagationConfig configures the loss contributor chain
type PropagationConfig struct {
	PathLossExponent  float64         `mapstructure:"pathLossExponent" yaml:"pathLossExponent"`
	ReferenceDistance float64         `mapstructure:"referenceDistance" yaml:"referenceDistance"`
	ReferenceLoss     float64         `mapstructure:"referenceLoss" yaml:"referenceLoss"`
	Shadowing         ShadowingConfig `mapstructure:"shadowing" yaml:"shadowing"`
	Buildings         BuildingsConfig `mapstructure:"buildings" yaml:"buildings"`
	Chain             []string        `mapstructure:"chain" yaml:"chain"`
}

// ShadowingConfig configures the correlated shadowing field
type ShadowingConfig struct {
	Enabled             bool    `mapstructure:"enabled" yaml:"enabled"`
	CorrelationDistance float64 `mapstructure:"correlationDistance" yaml:"correlationDistance"`
	Sigma               float64 `mapstructure:"sigma" yaml:"sigma"`
	CacheSize           int     `mapstructure:"cacheSize" yaml:"cacheSize"`
}

// BuildingsConfig configures the building penetration loss
type BuildingsConfig struct {
	Enabled      bool               `mapstructure:"enabled" yaml:"enabled"`
	PerWallLoss  float64            `mapstructure:"perWallLoss" yaml:"perWallLoss"`
	WallTypeLoss map[string]float64 `mapstructure:"wallTypeLoss" yaml:"wallTypeLoss"`
}

// LinkBudgetConfig has the receiver sensitivity table and LoRa modem parameters
type LinkBudgetConfig struct {
	Sensitivity    map[int]float64 `mapstructure:"sensitivity" yaml:"sensitivity"`
	Bandwidth      int             `mapstructure:"bandwidth" yaml:"bandwidth"`
	CodingRate     int             `mapstructure:"codingRate" yaml:"codingRate"`
	PreambleLength int             `mapstructure:"preambleLength" yaml:"preambleLength"`
}

// CaptureConfig is the capture-effect policy
type CaptureConfig struct {
	Margin   float64 `mapstructure:"margin" yaml:"margin"`
	TieBreak string  `mapstructure:"tieBreak" yaml:"tieBreak"`
}

const (
	TieBreakAllLost  = "allLost"
	TieBreakEarliest = "earliest"
)

// RedisConfig locates the result snapshot store
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	DB       string `mapstructure:"db" yaml:"db"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// GetDevice gets a device by id
func (m *Model) GetDevice(id string) (*EndDevice, error) {
	for i := range m.Devices {
		if m.Devices[i].ID == id {
			return &m.Devices[i], nil
		}
	}
	return nil, errors.NewNotFound("device %s not found", id)
}

// GetGateway gets a gateway by id
func (m *Model) GetGateway(id string) (*Gateway, error) {
	for i := range m.Gateways {
		if m.Gateways[i].ID == id {
			return &m.Gateways[i], nil
		}
	}
	return nil, errors.NewNotFound("gateway %s not found", id)
}
