// Package postgres persists the kolcrm state to a JSONB table in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/internal/infra/persistence/sqlstate"
	"kolcrm/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const driverName = "pgx"

// DefaultDSN is used when no DSN is configured.
const DefaultDSN = "postgres://localhost/kolcrm?sslmode=disable"

var (
	openMu  sync.Mutex
	sqlOpen = sql.Open
)

// Store is a memory store whose commits are written through to Postgres.
type Store struct {
	*memory.Store
	db       *sql.DB
	table    *sqlstate.Table
	problems []memory.BucketError
}

// NewStore connects to dsn, creates the state table if needed and loads it.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	open := sqlOpen
	openMu.Unlock()
	db, err := open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	table := sqlstate.New(db, sqlstate.Postgres)
	if err := table.Ensure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, problems, err := table.Load(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(engine, opts...)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db, table: table, problems: problems}, nil
}

// RunInTransaction commits fn in memory and then writes the changed buckets.
// A failed write keeps the in-memory commit and returns an error wrapping
// domain.ErrPersistence.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.table.Save(ctx, s.ExportState()); err != nil {
		return res, fmt.Errorf("%w: postgres: %w", domain.ErrPersistence, err)
	}
	return res, nil
}

// LoadProblems reports buckets that were malformed at startup and loaded empty.
func (s *Store) LoadProblems() []memory.BucketError {
	return append([]memory.BucketError(nil), s.problems...)
}

// DB exposes the database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen replaces the connection opener and returns a restore func.
// Tests use it to inject a stub driver.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
