// SPDX-FileCopyrightText: 2020-present Open Networking Foundation <info@opennetworking.org>
//
// SPDX-License-Identifier: Apache-2.0

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/nfvri/lora-simulator/pkg/model"
	redisLib "github.com/nfvri/lora-simulator/pkg/store/redis"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenario = `
seed: 11
devices:
  - id: ed-1
    position: {x: 100, y: 0, z: 1.2}
    txPowerDbm: 14
  - id: ed-2
    position: {x: -250, y: 400, z: 1.2}
    txPowerDbm: 14
  - id: ed-3
    position: {x: 60000, y: 0, z: 1.2}
    txPowerDbm: 14
gateways:
  - id: gw-1
    position: {x: 0, y: 0, z: 15}
events:
  - deviceId: ed-1
    sequence: 2
    timestamp: 3s
    payloadSize: 20
  - deviceId: ed-1
    sequence: 1
    timestamp: 1s
    payloadSize: 20
  - deviceId: ed-2
    sequence: 1
    timestamp: 2s
    payloadSize: 20
  - deviceId: ed-3
    sequence: 1
    timestamp: 4s
    payloadSize: 20
`

func newTestManager(t *testing.T, store redisLib.Store) *Manager {
	mgr, err := NewManager(&Config{Registerer: prometheus.NewRegistry(), Store: store})
	require.NoError(t, err)
	require.NoError(t, mgr.LoadModel(context.Background(), []byte(scenario)))
	return mgr
}

func TestRun(t *testing.T) {
	store := &redisLib.MockedRedisStore{}
	mgr := newTestManager(t, store)
	defer mgr.Close()
	assert.NotEmpty(t, mgr.RunID())

	snapshot, err := mgr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Received)
	assert.Equal(t, 1, snapshot.Lost)
	assert.Equal(t, int64(11), snapshot.Seed)

	assert.Equal(t, 2, mgr.Status().ReceivedPackets("ed-1"))
	assert.Equal(t, 1, mgr.Status().LostPackets("ed-3"))
	packets := mgr.Status().GetReceivedPackets("ed-1")
	require.Len(t, packets, 2)
	assert.Equal(t, uint32(1), packets[0].Key.Sequence)

	assert.True(t, mgr.Allocation().OutOfRange["ed-3"])
	assert.Equal(t, model.SF7, mgr.Allocation().Assignments["ed-1"])
	assert.Equal(t, model.SF12, mgr.Model().Devices[2].SpreadingFactor)

	observed, captured := mgr.Outcomes().Uplinks()
	assert.Equal(t, 4, observed)
	assert.Equal(t, 3, captured)
	assert.Equal(t, 1, mgr.Outcomes().Count("gw-1", model.OutOfRange))
	assert.Equal(t, 3.0, testutil.ToFloat64(mgr.Collector().Uplinks.WithLabelValues("true")))

	published, err := store.GetSnapshot(context.Background(), mgr.RunID())
	require.NoError(t, err)
	assert.Equal(t, 3, published.Received)
	assert.Len(t, published.Status.Received["ed-1"], 2)
}

func TestRunDeterministic(t *testing.T) {
	first, err := newTestManager(t, nil).Run(context.Background())
	require.NoError(t, err)
	second, err := newTestManager(t, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Allocation, second.Allocation)
}

func TestRunSeedOverride(t *testing.T) {
	mgr, err := NewManager(&Config{Registerer: prometheus.NewRegistry(), Seed: 99, RunID: "run-99"})
	require.NoError(t, err)
	require.NoError(t, mgr.LoadModel(context.Background(), []byte(scenario)))
	snapshot, err := mgr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), snapshot.Seed)
	assert.Equal(t, "run-99", snapshot.RunID)
}

func TestRunCanceled(t *testing.T) {
	mgr := newTestManager(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mgr.Run(ctx)
	assert.True(t, errors.IsCanceled(err))
}

func TestRunUnknownStrategy(t *testing.T) {
	mgr, err := NewManager(&Config{Registerer: prometheus.NewRegistry(), Strategy: "round-robin"})
	require.NoError(t, err)
	require.NoError(t, mgr.LoadModel(context.Background(), []byte(scenario)))
	_, err = mgr.Run(context.Background())
	assert.True(t, errors.IsInvalid(err))
}

func TestLoadModelInvalid(t *testing.T) {
	mgr, err := NewManager(&Config{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	err = mgr.LoadModel(context.Background(), []byte("gateways:\n  - id: gw-1\n  - id: gw-1\n"))
	assert.True(t, errors.IsInvalid(err))
	assert.Nil(t, mgr.Model())
}

func TestCoverageContour(t *testing.T) {
	mgr := newTestManager(t, nil)
	_, err := mgr.CoverageContour("gw-1", model.SF7, 8, 1.2, 14)
	assert.True(t, errors.IsConflict(err))

	_, err = mgr.Run(context.Background())
	require.NoError(t, err)

	_, err = mgr.CoverageContour("gw-9", model.SF7, 8, 1.2, 14)
	assert.True(t, errors.IsNotFound(err))

	sf7, err := mgr.CoverageContour("gw-1", model.SF7, 8, 1.2, 14)
	require.NoError(t, err)
	sf12, err := mgr.CoverageContour("gw-1", model.SF12, 8, 1.2, 14)
	require.NoError(t, err)
	assert.NotEmpty(t, sf7)
	assert.NotEmpty(t, sf12)
}

const uncountedScenario = `
propagation:
  shadowing:
    enabled: false
devices:
  - id: ed-1
    position: {x: 100, y: 0, z: 15}
    txPowerDbm: 14
gateways:
  - id: gw-1
    position: {x: 0, y: 0, z: 15}
events:
  - deviceId: ed-1
    timestamp: 1s
    payloadSize: 20
  - deviceId: ed-1
    timestamp: 60s
    payloadSize: 20
  - deviceId: ed-1
    timestamp: 120s
    payloadSize: 20
`

func TestRunEventsWithoutSequence(t *testing.T) {
	mgr, err := NewManager(&Config{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	require.NoError(t, mgr.LoadModel(context.Background(), []byte(uncountedScenario)))

	snapshot, err := mgr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Received)
	assert.Equal(t, 0, snapshot.Lost)

	packets := mgr.Status().GetReceivedPackets("ed-1")
	require.Len(t, packets, 3)
	assert.Equal(t, model.EventKey{DeviceID: "ed-1", Timestamp: time.Second}, packets[0].Key)
	assert.Equal(t, 120*time.Second, packets[2].Key.Timestamp)

	observed, captured := mgr.Outcomes().Uplinks()
	assert.Equal(t, 3, observed)
	assert.Equal(t, 3, captured)
}
