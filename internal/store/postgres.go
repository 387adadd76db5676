package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/margin-engine/internal/coverage"
)

// PostgresStore implements CoverageStore on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const pgUpsertCoverage = `
INSERT INTO coverage_records
    (commodity, hs2_chapter, sitc_section, category, description,
     total_years, covered_years, coverage_pct, coverage_class, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (commodity) DO UPDATE SET
    hs2_chapter    = EXCLUDED.hs2_chapter,
    sitc_section   = EXCLUDED.sitc_section,
    category       = EXCLUDED.category,
    description    = EXCLUDED.description,
    total_years    = EXCLUDED.total_years,
    covered_years  = EXCLUDED.covered_years,
    coverage_pct   = EXCLUDED.coverage_pct,
    coverage_class = EXCLUDED.coverage_class,
    updated_at     = EXCLUDED.updated_at`

const selectCoverageColumns = `
SELECT commodity, hs2_chapter, sitc_section, category, description,
       total_years, covered_years, coverage_pct, coverage_class
FROM coverage_records`

// UpsertCoverage writes all records in a single transaction.
func (s *PostgresStore) UpsertCoverage(ctx context.Context, records []coverage.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert coverage: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(pgUpsertCoverage,
			r.Commodity, r.HS2Chapter, r.SITCSection, r.Category, r.Description,
			r.TotalYears, r.CoveredYears, r.CoveragePct, r.Class.String(), now)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert coverage: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetCoverage(ctx context.Context, commodity int) (*coverage.Record, error) {
	row := s.pool.QueryRow(ctx, selectCoverageColumns+` WHERE commodity = $1`, commodity)
	r, err := scanCoverage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("coverage for commodity %d: %w", commodity, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get coverage %d: %w", commodity, err)
	}
	return r, nil
}

func (s *PostgresStore) ListCoverage(ctx context.Context) ([]coverage.Record, error) {
	rows, err := s.pool.Query(ctx, selectCoverageColumns+` ORDER BY commodity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coverage.Record
	for rows.Next() {
		r, err := scanCoverage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoverage(row rowScanner) (*coverage.Record, error) {
	var r coverage.Record
	var class string
	if err := row.Scan(&r.Commodity, &r.HS2Chapter, &r.SITCSection, &r.Category, &r.Description,
		&r.TotalYears, &r.CoveredYears, &r.CoveragePct, &class); err != nil {
		return nil, err
	}
	// Unknown labels stay Unknown so consumers take the conservative path.
	_ = r.Class.UnmarshalText([]byte(class))
	return &r, nil
}
