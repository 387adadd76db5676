// Package store persists the commodity coverage lookup and caches scenario
// grids. PostgreSQL or SQLite hold the lookup, Redis provides a read-through
// cache, and the in-memory implementations serve tests and development.
package store

import (
	"context"
	"errors"

	"github.com/atmx/margin-engine/internal/coverage"
	"github.com/atmx/margin-engine/internal/model"
)

// ErrNotFound is returned when a commodity has no coverage record.
var ErrNotFound = errors.New("store: not found")

// CoverageStore is the coverage lookup keyed by commodity code.
type CoverageStore interface {
	// UpsertCoverage inserts or replaces records by commodity code.
	UpsertCoverage(ctx context.Context, records []coverage.Record) error

	// GetCoverage returns the record for a commodity, or ErrNotFound.
	GetCoverage(ctx context.Context, commodity int) (*coverage.Record, error)

	// ListCoverage returns all records ordered by commodity code.
	ListCoverage(ctx context.Context) ([]coverage.Record, error)
}

// ResultCache memoizes scenario grids by their exact input key. A miss is
// reported as ok=false with a nil error.
type ResultCache interface {
	GetGrid(ctx context.Context, key string) (rows []model.GridRow, ok bool, err error)
	SetGrid(ctx context.Context, key string, rows []model.GridRow) error
}
