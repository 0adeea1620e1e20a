package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smart-aqua/backend/internal/config"
	"github.com/smart-aqua/backend/internal/db/models"
)

// StatusStore holds the latest status per device.
// Set always replaces the whole value so readers never observe a partial update.
type StatusStore interface {
	Get(ctx context.Context, deviceID string) (models.DeviceStatus, bool, error)
	Set(ctx context.Context, status models.DeviceStatus) error
	DeviceIDs(ctx context.Context) ([]string, error)
}

// MemoryStatusStore is a process-local StatusStore
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]models.DeviceStatus
}

// NewMemoryStatusStore creates an empty in-memory store
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{
		statuses: make(map[string]models.DeviceStatus),
	}
}

// Get returns a copy of the stored status
func (s *MemoryStatusStore) Get(_ context.Context, deviceID string) (models.DeviceStatus, bool, error) {
	s.mu.RLock()
	status, ok := s.statuses[deviceID]
	s.mu.RUnlock()

	if ok && status.DaysUntilEmpty != nil {
		days := *status.DaysUntilEmpty
		status.DaysUntilEmpty = &days
	}
	return status, ok, nil
}

// Set replaces the stored status
func (s *MemoryStatusStore) Set(_ context.Context, status models.DeviceStatus) error {
	if status.DeviceID == "" {
		return errors.New("status without device id")
	}
	if status.DaysUntilEmpty != nil {
		days := *status.DaysUntilEmpty
		status.DaysUntilEmpty = &days
	}

	s.mu.Lock()
	s.statuses[status.DeviceID] = status
	s.mu.Unlock()
	return nil
}

// DeviceIDs lists devices with a cached status, sorted
func (s *MemoryStatusStore) DeviceIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.statuses))
	for id := range s.statuses {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids, nil
}

// RedisStatusStore keeps one JSON document per device in Redis
// under "<prefix>:<device_id>", plus a set of known ids.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore connects to Redis and verifies it answers
func NewRedisStatusStore(ctx context.Context, cfg *config.RedisConfig) (*RedisStatusStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStatusStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStatusStoreWithClient wraps an existing client
func NewRedisStatusStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStatusStore {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "device_status"
	}
	return &RedisStatusStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStatusStore) key(deviceID string) string {
	return s.prefix + ":" + deviceID
}

func (s *RedisStatusStore) indexKey() string {
	return s.prefix + ":ids"
}

// Get loads and decodes a device status
func (s *RedisStatusStore) Get(ctx context.Context, deviceID string) (models.DeviceStatus, bool, error) {
	var status models.DeviceStatus

	raw, err := s.client.Get(ctx, s.key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return status, false, nil
	}
	if err != nil {
		return status, false, fmt.Errorf("failed to read status: %w", err)
	}

	if err := json.Unmarshal(raw, &status); err != nil {
		return status, false, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, true, nil
}

// Set writes the status document and indexes the device id
func (s *RedisStatusStore) Set(ctx context.Context, status models.DeviceStatus) error {
	if status.DeviceID == "" {
		return errors.New("status without device id")
	}

	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(status.DeviceID), raw, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), status.DeviceID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

// DeviceIDs lists indexed device ids, sorted
func (s *RedisStatusStore) DeviceIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping reports whether Redis answers
func (s *RedisStatusStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}
