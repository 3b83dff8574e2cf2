// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"os"
	"strings"

	"github.com/onosproject/onos-lib-go/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Contributor names understood by the propagation chain
const (
	DistanceContributor  = "distance"
	ShadowingContributor = "shadowing"
	BuildingsContributor = "buildings"
)

// DefaultModel returns an empty scenario carrying the default configuration
func DefaultModel() Model {
	return Model{
		Propagation: PropagationConfig{
			PathLossExponent:  3.76,
			ReferenceDistance: 1,
			ReferenceLoss:     7.7,
			Shadowing: ShadowingConfig{
				Enabled:             true,
				CorrelationDistance: 110,
				Sigma:               4,
				CacheSize:           100000,
			},
			Buildings: BuildingsConfig{
				Enabled:     true,
				PerWallLoss: 10,
				WallTypeLoss: map[string]float64{
					"wood":                   4,
					"concreteWithWindows":    7,
					"stoneBlocks":            12,
					"concreteWithoutWindows": 15,
				},
			},
			Chain: []string{DistanceContributor, ShadowingContributor, BuildingsContributor},
		},
		LinkBudget: LinkBudgetConfig{
			Sensitivity: map[int]float64{
				7:  -130.0,
				8:  -132.5,
				9:  -135.0,
				10: -137.5,
				11: -140.0,
				12: -142.5,
			},
			Bandwidth:      125000,
			CodingRate:     1,
			PreambleLength: 8,
		},
		Capture: CaptureConfig{
			Margin:   6,
			TieBreak: TieBreakAllLost,
		},
		Seed: 1,
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
			DB:   "0",
		},
	}
}

// LoadConfig loads the scenario <location>.yaml on top of the defaults
func LoadConfig(model *Model, location string) error {
	v := viper.New()
	v.SetConfigName(location)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./model")
	v.AddConfigPath("/etc/lora-simulator")
	if err := v.ReadInConfig(); err != nil {
		return errors.NewInvalid("unable to read scenario %s: %v", location, err)
	}
	log.Infof("Loading scenario from %s", v.ConfigFileUsed())
	data, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return errors.NewInvalid("unable to read scenario %s: %v", location, err)
	}
	return LoadConfigFromBytes(model, data)
}

// LoadConfigFromBytes loads a scenario document held in memory.
// The document is parsed as YAML 1.2 so that keys such as y stay strings.
func LoadConfigFromBytes(model *Model, data []byte) error {
	doc := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.NewInvalid("unable to parse scenario: %v", err)
	}
	v := viper.New()
	if err := v.MergeConfigMap(doc); err != nil {
		return errors.NewInvalid("unable to parse scenario: %v", err)
	}
	return decode(v, model)
}

func decode(v *viper.Viper, model *Model) error {
	*model = DefaultModel()
	if err := v.Unmarshal(model); err != nil {
		return errors.NewInvalid("unable to decode scenario: %v", err)
	}
	// viper lower-cases the keys of the document, they override the defaults
	wallTypeLoss := make(map[string]float64, len(model.Propagation.Buildings.WallTypeLoss))
	for wallType, loss := range model.Propagation.Buildings.WallTypeLoss {
		key := strings.ToLower(wallType)
		if _, ok := wallTypeLoss[key]; ok && wallType != key {
			continue
		}
		wallTypeLoss[key] = loss
	}
	model.Propagation.Buildings.WallTypeLoss = wallTypeLoss
	for i := range model.Gateways {
		if model.Gateways[i].ReceivePaths == 0 {
			model.Gateways[i].ReceivePaths = DefaultReceivePaths
		}
	}
	for i := range model.Events {
		if model.Events[i].Frequency == 0 {
			model.Events[i].Frequency = DefaultFrequency
		}
	}
	return model.Validate()
}

// Validate rejects configurations that must abort the run before any event is processed
func (m *Model) Validate() error {
	p := m.Propagation
	if p.PathLossExponent <= 0 {
		return errors.NewInvalid("path loss exponent must be positive, got %v", p.PathLossExponent)
	}
	if p.ReferenceDistance <= 0 {
		return errors.NewInvalid("reference distance must be positive, got %v", p.ReferenceDistance)
	}
	if p.Shadowing.Enabled {
		if p.Shadowing.CorrelationDistance <= 0 {
			return errors.NewInvalid("shadowing correlation distance must be positive, got %v", p.Shadowing.CorrelationDistance)
		}
		if p.Shadowing.Sigma < 0 {
			return errors.NewInvalid("shadowing sigma must not be negative, got %v", p.Shadowing.Sigma)
		}
	}
	if p.Buildings.PerWallLoss < 0 {
		return errors.NewInvalid("per wall loss must not be negative, got %v", p.Buildings.PerWallLoss)
	}
	for wallType, loss := range p.Buildings.WallTypeLoss {
		if loss < 0 {
			return errors.NewInvalid("wall type %s loss must not be negative, got %v", wallType, loss)
		}
	}
	if err := ValidateSensitivity(m.LinkBudget.Sensitivity); err != nil {
		return err
	}
	if m.LinkBudget.Bandwidth <= 0 {
		return errors.NewInvalid("bandwidth must be positive, got %d", m.LinkBudget.Bandwidth)
	}
	if m.LinkBudget.CodingRate < 1 || m.LinkBudget.CodingRate > 4 {
		return errors.NewInvalid("coding rate must be within 1..4 (4/5..4/8), got %d", m.LinkBudget.CodingRate)
	}
	if m.Capture.Margin < 0 {
		return errors.NewInvalid("capture margin must not be negative, got %v", m.Capture.Margin)
	}
	switch m.Capture.TieBreak {
	case TieBreakAllLost, TieBreakEarliest:
	default:
		return errors.NewInvalid("unknown capture tie break policy %q", m.Capture.TieBreak)
	}

	devices := make(map[string]bool, len(m.Devices))
	for _, d := range m.Devices {
		if d.ID == "" || devices[d.ID] {
			return errors.NewInvalid("device id %q is empty or duplicated", d.ID)
		}
		devices[d.ID] = true
	}
	gateways := make(map[string]bool, len(m.Gateways))
	for _, gw := range m.Gateways {
		if gw.ID == "" || gateways[gw.ID] {
			return errors.NewInvalid("gateway id %q is empty or duplicated", gw.ID)
		}
		gateways[gw.ID] = true
		merged := make(map[int]float64, len(m.LinkBudget.Sensitivity))
		for sf, s := range m.LinkBudget.Sensitivity {
			merged[sf] = s
		}
		for sf, s := range gw.Sensitivity {
			merged[sf] = s
		}
		if err := ValidateSensitivity(merged); err != nil {
			return errors.NewInvalid("gateway %s: %v", gw.ID, err)
		}
	}
	for _, e := range m.Events {
		if e.SpreadingFactor != 0 && !e.SpreadingFactor.Valid() {
			return errors.NewInvalid("event %s has invalid spreading factor %d", e.Key(), e.SpreadingFactor)
		}
		if e.PayloadSize < 0 {
			return errors.NewInvalid("event %s has a negative payload size", e.Key())
		}
	}
	for _, b := range m.Buildings {
		if b.XMax <= b.XMin || b.YMax <= b.YMin || b.Height <= 0 {
			return errors.NewInvalid("building %s has an empty footprint", b.ID)
		}
	}
	return nil
}

// ValidateSensitivity requires an entry for every spreading factor, improving as SF grows
func ValidateSensitivity(table map[int]float64) error {
	prev := 0.0
	for i, sf := range SpreadingFactors() {
		s, ok := table[int(sf)]
		if !ok {
			return errors.NewInvalid("missing sensitivity for %s", sf)
		}
		if i > 0 && s >= prev {
			return errors.NewInvalid("sensitivity for %s (%v dBm) must be lower than for %s (%v dBm)", sf, s, sf-1, prev)
		}
		prev = s
	}
	return nil
}
