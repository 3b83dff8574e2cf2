package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nfvri/lora-simulator/pkg/allocation"
	"github.com/nfvri/lora-simulator/pkg/model"
	"github.com/nfvri/lora-simulator/pkg/status"
	"github.com/onosproject/onos-lib-go/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RunSnapshot is the published result of one simulation run
type RunSnapshot struct {
	RunID      string                 `json:"runId"`
	Seed       int64                  `json:"seed"`
	Received   int                    `json:"received"`
	Lost       int                    `json:"lost"`
	Status     *status.Snapshot       `json:"status"`
	Allocation *allocation.Allocation `json:"allocation"`
}

// Store keeps run snapshots by run id
type Store interface {
	AddSnapshot(ctx context.Context, runID string, snapshot *RunSnapshot) error
	GetSnapshot(ctx context.Context, runID string) (*RunSnapshot, error)
	DeleteSnapshot(ctx context.Context, runID string) (*RunSnapshot, error)
}

type RedisStore struct {
	SnapshotDB *redis.Client
}

// InitClient connects to redis, pinging it until it answers or retries are exhausted
func InitClient(ctx context.Context, cfg model.RedisConfig, retries uint64) (*redis.Client, error) {
	database, err := strconv.Atoi(cfg.DB)
	if err != nil {
		return nil, errors.NewInvalid("invalid redis db %q: %v", cfg.DB, err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       database,
	})

	ping := func() error {
		err := client.Ping(ctx).Err()
		if err != nil {
			log.Warnf("Redis at %s:%s not ready: %v", cfg.Host, cfg.Port, err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(ping, b); err != nil {
		_ = client.Close()
		return nil, errors.NewUnavailable("redis at %s:%s unreachable: %v", cfg.Host, cfg.Port, err)
	}
	return client, nil
}

func snapshotKey(runID string) string {
	return runID + "-Snapshot"
}

func (s *RedisStore) AddSnapshot(ctx context.Context, runID string, snapshot *RunSnapshot) error {
	snapshotBytes, err := json.Marshal(snapshot)
	if err != nil {
		return errors.NewInternal("failed to marshal snapshot: %v", err)
	}
	return s.SnapshotDB.Set(ctx, snapshotKey(runID), snapshotBytes, time.Duration(0)).Err()
}

func (s *RedisStore) GetSnapshot(ctx context.Context, runID string) (*RunSnapshot, error) {
	snapshotBytes, err := s.SnapshotDB.Get(ctx, snapshotKey(runID)).Bytes()
	if err == redis.Nil || (err == nil && len(snapshotBytes) == 0) {
		return nil, errors.NewNotFound("snapshot of run %s does not exist", runID)
	}
	if err != nil {
		return nil, errors.NewUnavailable("error fetching snapshot of run %s: %v", runID, err)
	}
	return unmarshalSnapshot(snapshotBytes)
}

func (s *RedisStore) DeleteSnapshot(ctx context.Context, runID string) (*RunSnapshot, error) {
	snapshot, err := s.GetSnapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	err = s.SnapshotDB.Del(ctx, snapshotKey(runID)).Err()
	return snapshot, err
}

func unmarshalSnapshot(snapshotBytes []byte) (*RunSnapshot, error) {
	snapshot := &RunSnapshot{}
	if err := json.Unmarshal(snapshotBytes, snapshot); err != nil {
		return nil, errors.NewInternal("failed to unmarshal snapshot: %v", err)
	}
	return snapshot, nil
}

// MockedRedisStore keeps snapshots in memory, encoded the way RedisStore stores them
type MockedRedisStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
}

func (s *MockedRedisStore) AddSnapshot(_ context.Context, runID string, snapshot *RunSnapshot) error {
	snapshotBytes, err := json.Marshal(snapshot)
	if err != nil {
		return errors.NewInternal("failed to marshal snapshot: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshots == nil {
		s.snapshots = make(map[string][]byte)
	}
	s.snapshots[snapshotKey(runID)] = snapshotBytes
	return nil
}

func (s *MockedRedisStore) GetSnapshot(_ context.Context, runID string) (*RunSnapshot, error) {
	s.mu.Lock()
	snapshotBytes, ok := s.snapshots[snapshotKey(runID)]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFound("snapshot of run %s does not exist", runID)
	}
	return unmarshalSnapshot(snapshotBytes)
}

func (s *MockedRedisStore) DeleteSnapshot(ctx context.Context, runID string) (*RunSnapshot, error) {
	snapshot, err := s.GetSnapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.snapshots, snapshotKey(runID))
	s.mu.Unlock()
	return snapshot, nil
}
