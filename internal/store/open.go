package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/atmx/margin-engine/internal/migrations"
)

// Backend names the store Open selected.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

// Open selects a coverage store: PostgreSQL when databaseURL is set, SQLite
// when sqlitePath is set, memory otherwise. Database schemas are migrated
// before returning. The returned func releases the connection.
func Open(ctx context.Context, databaseURL, sqlitePath string) (CoverageStore, Backend, func(), error) {
	switch {
	case databaseURL != "":
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, "", nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, "", nil, fmt.Errorf("ping postgres: %w", err)
		}

		// The *sql.DB borrows connections from pool; it is not closed
		// separately.
		if err := migrations.Up(stdlib.OpenDBFromPool(pool), migrations.DialectPostgres); err != nil {
			pool.Close()
			return nil, "", nil, err
		}
		return NewPostgresStore(pool), BackendPostgres, pool.Close, nil

	case sqlitePath != "":
		db, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, "", nil, err
		}
		if err := migrations.Up(db, migrations.DialectSQLite); err != nil {
			db.Close()
			return nil, "", nil, err
		}
		return NewSQLiteStore(db), BackendSQLite, func() { db.Close() }, nil

	default:
		return NewMemoryStore(), BackendMemory, func() {}, nil
	}
}
