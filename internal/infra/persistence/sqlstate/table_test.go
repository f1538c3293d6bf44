package sqlstate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/pkg/domain"

	_ "modernc.org/sqlite"
)

func openTable(t *testing.T) (*sql.DB, *Table) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	table := New(db, SQLite)
	if err := table.Ensure(context.Background()); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return db, table
}

func snapshotWith(names ...string) memory.Snapshot {
	s := memory.Snapshot{Experts: map[string]domain.Expert{}, Visits: map[string]domain.Visit{}}
	for i, name := range names {
		id := string(rune('a' + i))
		s.Experts[id] = domain.Expert{Base: domain.Base{ID: id}, Name: name, Level: 3, Seq: uint64(i + 1)}
	}
	return s
}

func updatedAt(t *testing.T, db *sql.DB, bucket string) string {
	t.Helper()
	var ts string
	if err := db.QueryRow(`SELECT CAST(updated_at AS TEXT) FROM kolcrm_state WHERE bucket = ?`, bucket).Scan(&ts); err != nil {
		t.Fatalf("updated_at %s: %v", bucket, err)
	}
	return ts
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, table := openTable(t)
	if err := table.Save(ctx, snapshotWith("张三", "李四")); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, problems, err := New(db, SQLite).Load(ctx)
	if err != nil || len(problems) != 0 {
		t.Fatalf("load: %v %v", err, problems)
	}
	if len(snap.Experts) != 2 || snap.Experts["b"].Name != "李四" {
		t.Fatalf("unexpected experts %+v", snap.Experts)
	}
}

func TestSaveSkipsUnchangedBuckets(t *testing.T) {
	ctx := context.Background()
	db, table := openTable(t)
	if err := table.Save(ctx, snapshotWith("张三")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := db.Exec(`UPDATE kolcrm_state SET updated_at = '2000-01-01 00:00:00'`); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := table.Save(ctx, snapshotWith("张三", "李四")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := updatedAt(t, db, memory.BucketVisits); got != "2000-01-01 00:00:00" {
		t.Fatalf("expected visits bucket untouched, got %s", got)
	}
	if got := updatedAt(t, db, memory.BucketExperts); got == "2000-01-01 00:00:00" {
		t.Fatalf("expected experts bucket rewritten")
	}
}

func TestLoadReportsMalformedBucket(t *testing.T) {
	ctx := context.Background()
	db, table := openTable(t)
	if _, err := db.Exec(`INSERT INTO kolcrm_state(bucket,payload) VALUES(?,?)`, memory.BucketExperts, []byte("{oops")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	snap, problems, err := table.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Experts) != 0 || len(problems) != 1 || problems[0].Bucket != memory.BucketExperts {
		t.Fatalf("expected one experts problem, got %v", problems)
	}
}

func TestPostgresDialectPlaceholders(t *testing.T) {
	if got := Postgres.bind(2); got != "$2" {
		t.Fatalf("expected $2, got %s", got)
	}
	if got := SQLite.bind(2); got != "?" {
		t.Fatalf("expected ?, got %s", got)
	}
}
