package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/atmx/margin-engine/internal/coverage"
)

// OpenSQLite opens (creating if needed) a SQLite database file in WAL mode.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY on upsert.
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteStore implements CoverageStore on SQLite, for single-node
// deployments without PostgreSQL.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteUpsertCoverage = `
INSERT INTO coverage_records
    (commodity, hs2_chapter, sitc_section, category, description,
     total_years, covered_years, coverage_pct, coverage_class, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (commodity) DO UPDATE SET
    hs2_chapter    = excluded.hs2_chapter,
    sitc_section   = excluded.sitc_section,
    category       = excluded.category,
    description    = excluded.description,
    total_years    = excluded.total_years,
    covered_years  = excluded.covered_years,
    coverage_pct   = excluded.coverage_pct,
    coverage_class = excluded.coverage_class,
    updated_at     = excluded.updated_at`

func (s *SQLiteStore) UpsertCoverage(ctx context.Context, records []coverage.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert coverage: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertCoverage)
	if err != nil {
		return fmt.Errorf("prepare upsert coverage: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Commodity, r.HS2Chapter, r.SITCSection, r.Category, r.Description,
			r.TotalYears, r.CoveredYears, r.CoveragePct, r.Class.String(), now); err != nil {
			return fmt.Errorf("upsert coverage %d: %w", r.Commodity, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetCoverage(ctx context.Context, commodity int) (*coverage.Record, error) {
	row := s.db.QueryRowContext(ctx, selectCoverageColumns+` WHERE commodity = ?`, commodity)
	r, err := scanCoverage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coverage for commodity %d: %w", commodity, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get coverage %d: %w", commodity, err)
	}
	return r, nil
}

func (s *SQLiteStore) ListCoverage(ctx context.Context) ([]coverage.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectCoverageColumns+` ORDER BY commodity`)
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
