package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/models"
)

// PoolStore is the key/value store holding cached challenge pools per location bucket. Stores
// only hold entries; freshness is decided by the caller from PoolEntry.Timestamp.
type PoolStore interface {
	Get(ctx context.Context, key string) (models.PoolEntry, bool, error)
	Set(ctx context.Context, key string, entry models.PoolEntry) error
}

var (
	_ PoolStore = (*MemoryPoolStore)(nil)
	_ PoolStore = (*RedisPoolStore)(nil)
)

// MemoryPoolStore keeps pools in process memory.
type MemoryPoolStore struct {
	cache *UnifiedCache[models.PoolEntry]
}

// NewMemoryPoolStore creates an in-memory store. retention bounds how long an entry is kept at
// all and should be at least the pool TTL.
func NewMemoryPoolStore(retention time.Duration, logger *zap.Logger, opts ...Option) *MemoryPoolStore {
	return &MemoryPoolStore{cache: NewUnifiedCache[models.PoolEntry](retention, "challenge_pools", logger, opts...)}
}

func (s *MemoryPoolStore) Get(_ context.Context, key string) (models.PoolEntry, bool, error) {
	entry, ok := s.cache.Get(key)
	return entry, ok, nil
}

func (s *MemoryPoolStore) Set(_ context.Context, key string, entry models.PoolEntry) error {
	s.cache.Set(key, entry)
	return nil
}

// Metrics exposes hit/miss counters of the underlying cache.
func (s *MemoryPoolStore) Metrics() CacheMetrics {
	return s.cache.GetMetrics()
}

// Close stops the background sweeper.
func (s *MemoryPoolStore) Close() {
	s.cache.Close()
}

// RedisPoolStore shares pools between server instances.
type RedisPoolStore struct {
	client    redis.Cmdable
	retention time.Duration
	logger    *zap.Logger
}

// NewRedisPoolStore wraps a redis client.
func NewRedisPoolStore(client redis.Cmdable, retention time.Duration, logger *zap.Logger) *RedisPoolStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPoolStore{client: client, retention: retention, logger: logger}
}

func (s *RedisPoolStore) Get(ctx context.Context, key string) (models.PoolEntry, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PoolEntry{}, false, nil
	}
	if err != nil {
		return models.PoolEntry{}, false, fmt.Errorf("failed to read pool %s: %w", key, err)
	}

	var entry models.PoolEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.logger.Warn("Discarding undecodable pool entry", zap.String("key", key), zap.Error(err))
		return models.PoolEntry{}, false, nil
	}
	return entry, true, nil
}

func (s *RedisPoolStore) Set(ctx context.Context, key string, entry models.PoolEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode pool %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to write pool %s: %w", key, err)
	}
	return nil
}
