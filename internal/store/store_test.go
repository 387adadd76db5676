package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/migrations"
	"github.com/atmx/margin-engine/internal/model"
)

func sampleRecords() []coverage.Record {
	return []coverage.Record{
		coverage.Record{Commodity: 84, CoveragePct: 91.7, TotalYears: 12, CoveredYears: 11, Class: coverage.High, SITCSection: coverage.NoSection}.Normalize(),
		coverage.Record{Commodity: 9, CoveragePct: 25, TotalYears: 12, CoveredYears: 3, Class: coverage.Low, SITCSection: coverage.NoSection}.Normalize(),
	}
}

// exerciseCoverageStore runs the same contract checks against any store.
func exerciseCoverageStore(t *testing.T, s CoverageStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetCoverage(ctx, 84)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertCoverage(ctx, sampleRecords()))

	got, err := s.GetCoverage(ctx, 84)
	require.NoError(t, err)
	assert.Equal(t, coverage.High, got.Class)
	assert.Equal(t, 7, got.SITCSection)
	assert.Equal(t, "Nuclear reactors, boilers, machinery", got.Description)
	assert.InDelta(t, 91.7, got.CoveragePct, 1e-9)

	list, err := s.ListCoverage(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 9, list[0].Commodity, "ordered by commodity")
	assert.Equal(t, 84, list[1].Commodity)

	// Upsert replaces the existing row.
	updated := sampleRecords()[1]
	updated.CoveragePct = 60
	updated.Class = coverage.Partial
	require.NoError(t, s.UpsertCoverage(ctx, []coverage.Record{updated}))

	got, err = s.GetCoverage(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, coverage.Partial, got.Class)

	list, err = s.ListCoverage(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestMemoryStore(t *testing.T) {
	exerciseCoverageStore(t, NewMemoryStore())
}

func TestMemoryStore_RejectsInvalidCommodity(t *testing.T) {
	err := NewMemoryStore().UpsertCoverage(context.Background(), []coverage.Record{{Commodity: 0}})
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "coverage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.Up(db, migrations.DialectSQLite))
	version, err := migrations.Version(db, migrations.DialectSQLite)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	// Running again is a no-op.
	require.NoError(t, migrations.Up(db, migrations.DialectSQLite))

	exerciseCoverageStore(t, NewSQLiteStore(db))
}

func TestSQLiteStore_UnknownClassLabel(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "coverage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Up(db, migrations.DialectSQLite))

	_, err = db.Exec(`INSERT INTO coverage_records
		(commodity, hs2_chapter, sitc_section, coverage_pct, coverage_class)
		VALUES (27, 27, 3, 55, 'Mostly covered')`)
	require.NoError(t, err)

	got, err := NewSQLiteStore(db).GetCoverage(context.Background(), 27)
	require.NoError(t, err)
	assert.Equal(t, coverage.Unknown, got.Class)
}

func TestStoreErrNotFoundIsWrapped(t *testing.T) {
	_, err := NewMemoryStore().GetCoverage(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "commodity 1")
}

func TestMemoryResultCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryResultCache(2)

	_, ok, err := c.GetGrid(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	rows := []model.GridRow{{FXShockPct: decimal.NewFromInt(-10), Profit: decimal.NewFromInt(5)}}
	require.NoError(t, c.SetGrid(ctx, "a", rows))
	require.NoError(t, c.SetGrid(ctx, "b", rows))

	got, ok, err := c.GetGrid(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got[0].Profit.Equal(decimal.NewFromInt(5)))

	// Mutating the returned slice does not affect the cache.
	got[0].Profit = decimal.NewFromInt(99)
	again, _, _ := c.GetGrid(ctx, "a")
	assert.True(t, again[0].Profit.Equal(decimal.NewFromInt(5)))

	// Third key evicts the oldest.
	require.NoError(t, c.SetGrid(ctx, "c", rows))
	assert.Equal(t, 2, c.Len())
	_, ok, _ = c.GetGrid(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.GetGrid(ctx, "c")
	assert.True(t, ok)

	// Overwriting an existing key does not evict.
	require.NoError(t, c.SetGrid(ctx, "c", nil))
	assert.Equal(t, 2, c.Len())
}

var (
	_ CoverageStore = (*MemoryStore)(nil)
	_ CoverageStore = (*PostgresStore)(nil)
	_ CoverageStore = (*SQLiteStore)(nil)
	_ CoverageStore = (*CachedStore)(nil)
	_ ResultCache   = (*MemoryResultCache)(nil)
	_ ResultCache   = (*RedisResultCache)(nil)
)

func TestOpen_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	st, backend, closeFn, err := Open(ctx, "", "")
	require.NoError(t, err)
	closeFn()
	assert.Equal(t, BackendMemory, backend)
	assert.IsType(t, &MemoryStore{}, st)

	st, backend, closeFn, err = Open(ctx, "", filepath.Join(t.TempDir(), "coverage.db"))
	require.NoError(t, err)
	t.Cleanup(closeFn)
	assert.Equal(t, BackendSQLite, backend)
	exerciseCoverageStore(t, st)
}
