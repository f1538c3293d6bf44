// Package sqlite persists the kolcrm state to a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/internal/infra/persistence/sqlstate"
	"kolcrm/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "kolcrm.db"

// Store is a memory store whose commits are written through to SQLite.
type Store struct {
	*memory.Store
	db       *sql.DB
	table    *sqlstate.Table
	path     string
	problems []memory.BucketError
}

// NewStore opens or creates the database at path and loads its state.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	table := sqlstate.New(db, sqlstate.SQLite)
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
	return &Store{Store: mem, db: db, table: table, path: path, problems: problems}, nil
}

// RunInTransaction commits fn in memory and then writes the changed buckets.
// A failed write keeps the in-memory commit and returns an error wrapping
// domain.ErrPersistence.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.table.Save(ctx, s.ExportState()); err != nil {
		return res, fmt.Errorf("%w: sqlite: %w", domain.ErrPersistence, err)
	}
	return res, nil
}

// LoadProblems reports buckets that were malformed at startup and loaded empty.
func (s *Store) LoadProblems() []memory.BucketError {
	return append([]memory.BucketError(nil), s.problems...)
}

// DB exposes the database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
