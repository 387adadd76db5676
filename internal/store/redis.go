package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/model"
)

// CachedStore wraps a primary CoverageStore with a Redis read-through cache.
// Writes go to the primary store and invalidate the cache; reads check Redis
// first then fall back to the primary.
type CachedStore struct {
	primary CoverageStore
	rdb     *redis.Client
	ttl     time.Duration
}

func NewCachedStore(primary CoverageStore, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertCoverage(ctx context.Context, records []coverage.Record) error {
	if err := s.primary.UpsertCoverage(ctx, records); err != nil {
		return err
	}
	keys := make([]string, 0, len(records)+1)
	for _, r := range records {
		keys = append(keys, coverageKey(r.Commodity))
	}
	keys = append(keys, coverageListKey)
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCoverage(ctx context.Context, commodity int) (*coverage.Record, error) {
	data, err := s.rdb.Get(ctx, coverageKey(commodity)).Bytes()
	if err == nil {
		var r coverage.Record
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.GetCoverage(ctx, commodity)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(r); err == nil {
		s.rdb.Set(ctx, coverageKey(commodity), data, s.ttl)
	}
	return r, nil
}

func (s *CachedStore) ListCoverage(ctx context.Context) ([]coverage.Record, error) {
	data, err := s.rdb.Get(ctx, coverageListKey).Bytes()
	if err == nil {
		var records []coverage.Record
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := s.primary.ListCoverage(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		s.rdb.Set(ctx, coverageListKey, data, s.ttl)
	}
	return records, nil
}

// RedisResultCache stores scenario grids as JSON with a TTL.
type RedisResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisResultCache(rdb *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{rdb: rdb, ttl: ttl}
}

func (c *RedisResultCache) GetGrid(ctx context.Context, key string) ([]model.GridRow, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get grid %s: %w", key, err)
	}
	var rows []model.GridRow
	if err := json.Unmarshal(data, &rows); err != nil {
		// Corrupt entry: treat as a miss, it will be overwritten.
		return nil, false, nil
	}
	return rows, true, nil
}

func (c *RedisResultCache) SetGrid(ctx context.Context, key string, rows []model.GridRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

// --- Cache helpers ---

const coverageListKey = "coverage:all"

func coverageKey(commodity int) string { return fmt.Sprintf("coverage:%d", commodity) }
