package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/model"
)

// MemoryStore implements CoverageStore with an in-memory map. Used for
// testing and development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int]coverage.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int]coverage.Record)}
}

func (s *MemoryStore) UpsertCoverage(_ context.Context, records []coverage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.Commodity <= 0 {
			return fmt.Errorf("upsert coverage: invalid commodity %d", r.Commodity)
		}
		s.records[r.Commodity] = r
	}
	return nil
}

func (s *MemoryStore) GetCoverage(_ context.Context, commodity int) (*coverage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[commodity]
	if !ok {
		return nil, fmt.Errorf("coverage for commodity %d: %w", commodity, ErrNotFound)
	}
	return &r, nil
}

func (s *MemoryStore) ListCoverage(_ context.Context) ([]coverage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]coverage.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Commodity < out[j].Commodity })
	return out, nil
}

// MemoryResultCache is a bounded in-process grid cache. When full, the
// oldest entry is evicted.
type MemoryResultCache struct {
	mu      sync.Mutex
	max     int
	order   []string
	entries map[string][]model.GridRow
}

// NewMemoryResultCache creates a cache holding at most max grids.
func NewMemoryResultCache(max int) *MemoryResultCache {
	if max <= 0 {
		max = 256
	}
	return &MemoryResultCache{max: max, entries: make(map[string][]model.GridRow)}
}

func (c *MemoryResultCache) GetGrid(_ context.Context, key string) ([]model.GridRow, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]model.GridRow, len(rows))
	copy(out, rows)
	return out, true, nil
}

func (c *MemoryResultCache) SetGrid(_ context.Context, key string, rows []model.GridRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	stored := make([]model.GridRow, len(rows))
	copy(stored, rows)
	c.entries[key] = stored
	return nil
}

// Len returns the number of cached grids.
func (c *MemoryResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
