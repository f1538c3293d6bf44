// Package sqlstate stores the bucket snapshots of a memory store in a SQL
// table holding one row per bucket.
package sqlstate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"sync"

	"kolcrm/internal/infra/persistence/memory"
)

// TableName is the state table shared by every SQL backend.
const TableName = "kolcrm_state"

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name        string
	PayloadType string
	TimeType    string
	Now         string
	bind        func(n int) string
}

// Supported dialects.
var (
	SQLite = Dialect{
		Name:        "sqlite",
		PayloadType: "BLOB",
		TimeType:    "TIMESTAMP",
		Now:         "CURRENT_TIMESTAMP",
		bind:        func(int) string { return "?" },
	}
	Postgres = Dialect{
		Name:        "postgres",
		PayloadType: "JSONB",
		TimeType:    "TIMESTAMPTZ",
		Now:         "now()",
		bind:        func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

// Table reads and writes bucket rows. Save skips buckets whose payload is
// unchanged since the last successful load or save.
type Table struct {
	db      *sql.DB
	dialect Dialect

	mu      sync.Mutex
	written map[string][sha256.Size]byte
}

// New wraps db.
func New(db *sql.DB, dialect Dialect) *Table {
	return &Table{db: db, dialect: dialect, written: make(map[string][sha256.Size]byte)}
}

// Ensure creates the state table when it is missing.
func (t *Table) Ensure(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		bucket TEXT PRIMARY KEY,
		payload %s NOT NULL,
		updated_at %s NOT NULL DEFAULT %s
	)`, TableName, t.dialect.PayloadType, t.dialect.TimeType, t.dialect.Now)
	if _, err := t.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", TableName, err)
	}
	return nil
}

// Load decodes every stored bucket. Malformed buckets load empty and are
// reported alongside the snapshot; only query failures return an error.
func (t *Table) Load(ctx context.Context) (memory.Snapshot, []memory.BucketError, error) {
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf(`SELECT bucket, payload FROM %s`, TableName))
	if err != nil {
		return memory.Snapshot{}, nil, fmt.Errorf("select %s: %w", TableName, err)
	}
	defer func() { _ = rows.Close() }()

	raw := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, nil, fmt.Errorf("scan %s: %w", TableName, err)
		}
		raw[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, nil, fmt.Errorf("iterate %s: %w", TableName, err)
	}

	t.mu.Lock()
	for bucket, payload := range raw {
		t.written[bucket] = sha256.Sum256(payload)
	}
	t.mu.Unlock()

	snapshot, problems := memory.DecodeBuckets(raw)
	return snapshot, problems, nil
}

// Save upserts the changed buckets of snapshot in one transaction.
func (t *Table) Save(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	payloads, err := memory.EncodeBuckets(snapshot)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := make(map[string][sha256.Size]byte)
	for _, bucket := range memory.Buckets() {
		sum := sha256.Sum256(payloads[bucket])
		if prev, ok := t.written[bucket]; ok && prev == sum {
			continue
		}
		pending[bucket] = sum
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	upsert := fmt.Sprintf(
		`INSERT INTO %s(bucket,payload,updated_at) VALUES(%s,%s,%s) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		TableName, t.dialect.bind(1), t.dialect.bind(2), t.dialect.Now)
	for _, bucket := range memory.Buckets() {
		if _, ok := pending[bucket]; !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, bucket, payloads[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for bucket, sum := range pending {
		t.written[bucket] = sum
	}
	return nil
}
