// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/nfvri/lora-simulator/pkg/allocation"
	"github.com/nfvri/lora-simulator/pkg/metrics"
	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/reception"
	"github.com/nfvri/lora-simulator/pkg/signal"
	"github.com/nfvri/lora-simulator/pkg/statistics"
	"github.com/nfvri/lora-simulator/pkg/status"
	redisLib "github.com/nfvri/lora-simulator/pkg/store/redis"
	"github.com/nfvri/lora-simulator/pkg/utils"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	"github.com/onosproject/onos-lib-go/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

var log = logging.GetLogger()

const redisRetries = 3

// Config is a manager configuration
type Config struct {
	ModelName    string
	RunID        string
	Seed         int64
	Strategy     string
	FixedSF      model.SpreadingFactor
	RedisEnabled bool
	// Registerer receives the run metrics, the global registry when nil
	Registerer prometheus.Registerer
	// Store overrides the redis snapshot store
	Store redisLib.Store
}

// NewManager creates a new manager
func NewManager(config *Config) (*Manager, error) {
	log.Info("Creating Manager")
	if config.RunID == "" {
		config.RunID = uuid.New().String()
	}
	collector, err := metrics.NewCollector(config.Registerer)
	if err != nil {
		return nil, err
	}
	mgr := &Manager{
		config:    *config,
		collector: collector,
		store:     config.Store,
	}
	return mgr, nil
}

// Manager runs one simulation: it assigns spreading factors, replays the uplink
// events through the reception engine and publishes the network status.
type Manager struct {
	config     Config
	model      *model.Model
	chain      *signal.Chain
	budget     *signal.LinkBudget
	allocation *allocation.Allocation
	status     *status.NetworkStatus
	outcomes   *statistics.OutcomeCounter
	collector  *metrics.Collector
	store      redisLib.Store
	rdbClient  *redis.Client
}

// LoadModel loads the new model into the simulator
func (m *Manager) LoadModel(ctx context.Context, data []byte) error {
	mdl := &model.Model{}
	if err := model.LoadConfigFromBytes(mdl, data); err != nil {
		return err
	}
	m.model = mdl
	return nil
}

// Start loads the configured model unless one was already loaded and connects to redis when enabled
func (m *Manager) Start(ctx context.Context) error {
	if m.model == nil {
		mdl := &model.Model{}
		if err := model.LoadConfig(mdl, m.config.ModelName); err != nil {
			log.Error(err)
			return err
		}
		m.model = mdl
	}
	if m.config.Seed != 0 {
		m.model.Seed = m.config.Seed
	}

	if m.store == nil && (m.config.RedisEnabled || m.model.Redis.Enabled) {
		cfg := m.model.Redis
		cfg.Host = utils.GetEnv("REDIS_HOST", cfg.Host)
		cfg.Port = utils.GetEnv("REDIS_PORT", cfg.Port)
		rdbClient, err := redisLib.InitClient(ctx, cfg, redisRetries)
		if err != nil {
			log.Errorf("Snapshots will not be published: %v", err)
		} else {
			m.rdbClient = rdbClient
			m.store = &redisLib.RedisStore{SnapshotDB: rdbClient}
		}
	}
	return nil
}

// Run runs the simulation to completion and returns its snapshot
func (m *Manager) Run(ctx context.Context) (*redisLib.RunSnapshot, error) {
	log.Infof("Running simulation %s", m.config.RunID)
	if err := m.Start(ctx); err != nil {
		return nil, err
	}

	chain, err := signal.NewChain(m.model.Propagation, m.model.Buildings, m.model.Seed)
	if err != nil {
		return nil, err
	}
	budget, err := signal.NewLinkBudget(m.model.LinkBudget)
	if err != nil {
		return nil, err
	}
	m.chain, m.budget = chain, budget

	strategy, err := allocation.NewStrategy(m.config.Strategy, m.config.FixedSF)
	if err != nil {
		return nil, err
	}
	m.allocation, err = allocation.NewAllocator(chain, budget, strategy).AssignAll(m.model.Devices, m.model.Gateways)
	if err != nil {
		return nil, err
	}
	m.collector.SetAllocation(m.allocation.Counts, m.allocation.OutOfRangeCount)

	m.status = status.NewNetworkStatus()
	m.outcomes = statistics.NewOutcomeCounter()
	engine, err := reception.NewEngine(m.model, chain, budget, signal.NewCaptureTracker(m.model.Capture), m.status, m.collector, m.outcomes)
	if err != nil {
		return nil, err
	}

	events := make([]model.UplinkEvent, len(m.model.Events))
	copy(events, m.model.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	for _, event := range events {
		if ctx.Err() != nil {
			return nil, errors.NewCanceled("simulation %s canceled at %v: %v", m.config.RunID, event.Timestamp, ctx.Err())
		}
		if _, err := engine.Process(event); err != nil {
			log.Errorf("Failed to process %s: %v", event.Key(), err)
			return nil, err
		}
	}
	engine.Flush()

	snapshot := m.snapshot()
	log.Infof("Simulation %s done: %d received, %d lost, PDR %.3f", m.config.RunID, snapshot.Received, snapshot.Lost,
		statistics.ReceivedProbability(snapshot.Received, snapshot.Lost))
	if m.store != nil {
		if err := m.store.AddSnapshot(ctx, m.config.RunID, snapshot); err != nil {
			log.Errorf("Failed to publish snapshot of %s: %v", m.config.RunID, err)
		}
	}
	return snapshot, nil
}

func (m *Manager) snapshot() *redisLib.RunSnapshot {
	received, lost := m.status.Totals()
	return &redisLib.RunSnapshot{
		RunID:      m.config.RunID,
		Seed:       m.model.Seed,
		Received:   received,
		Lost:       lost,
		Status:     m.status.Snapshot(),
		Allocation: m.allocation,
	}
}

// CoverageContour samples the boundary of the area where gatewayID receives a device at sf
func (m *Manager) CoverageContour(gatewayID string, sf model.SpreadingFactor, numPoints int, deviceHeight, txPowerDbm float64) ([]model.Position, error) {
	if m.chain == nil {
		return nil, errors.NewConflict("simulation has not run")
	}
	gw, err := m.model.GetGateway(gatewayID)
	if err != nil {
		return nil, err
	}
	lb, err := m.budget.ForGateway(*gw)
	if err != nil {
		return nil, err
	}
	sensitivity, err := lb.Sensitivity(sf)
	if err != nil {
		return nil, err
	}
	return signal.CoverageContour(m.chain, *gw, numPoints, deviceHeight, txPowerDbm, sensitivity), nil
}

// Close releases the redis connection
func (m *Manager) Close() {
	log.Info("Closing Manager")
	if m.rdbClient != nil {
		if err := m.rdbClient.Close(); err != nil {
			log.Warn(err)
		}
	}
}

func (m *Manager) RunID() string {
	return m.config.RunID
}

func (m *Manager) Model() *model.Model {
	return m.model
}

func (m *Manager) Status() *status.NetworkStatus {
	return m.status
}

func (m *Manager) Allocation() *allocation.Allocation {
	return m.allocation
}

func (m *Manager) Outcomes() *statistics.OutcomeCounter {
	return m.outcomes
}

func (m *Manager) Collector() *metrics.Collector {
	return m.collector
}
