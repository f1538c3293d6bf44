package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/pkg/domain"
)

func createExpertWithVisit(t *testing.T, store *Store) {
	t.Helper()
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		e, err := tx.CreateExpert(domain.Expert{Name: "张三", Hospital: "协和", Department: "内分泌科", Level: 4})
		if err != nil {
			return err
		}
		_, err = tx.CreateVisit(domain.Visit{ExpertID: e.ID, Date: "2024-02-01", Content: "学术会", Level: 4})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	createExpertWithVisit(t, store)
	_ = store.Close()

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if got := len(reloaded.ListExperts()); got != 1 {
		t.Fatalf("expected 1 expert, got %d", got)
	}
	visits := reloaded.ListVisits()
	if len(visits) != 1 || visits[0].Content != "学术会" {
		t.Fatalf("unexpected visits %+v", visits)
	}
	if reloaded.Path() != path {
		t.Fatalf("expected path %s, got %s", path, reloaded.Path())
	}
}

func TestSQLiteStoreUsesLegacyBucketKeys(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	createExpertWithVisit(t, store)

	for _, bucket := range []string{memory.BucketExperts, memory.BucketVisits} {
		var n int
		if err := store.DB().QueryRow(`SELECT COUNT(*) FROM kolcrm_state WHERE bucket = ?`, bucket).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", bucket, err)
		}
		if n != 1 {
			t.Fatalf("expected bucket %s persisted once, got %d", bucket, n)
		}
	}
}

func TestSQLiteStoreMalformedBucketLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	createExpertWithVisit(t, store)
	if _, err := store.DB().Exec(`UPDATE kolcrm_state SET payload = ? WHERE bucket = ?`, []byte("{broken"), memory.BucketVisits); err != nil {
		t.Fatalf("corrupt visits: %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("expected malformed bucket to be tolerated, got %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if len(reloaded.ListVisits()) != 0 {
		t.Fatalf("expected empty visits after malformed payload")
	}
	if len(reloaded.ListExperts()) != 1 {
		t.Fatalf("expected experts bucket intact")
	}
	problems := reloaded.LoadProblems()
	if len(problems) != 1 || problems[0].Bucket != memory.BucketVisits {
		t.Fatalf("expected visits load problem, got %v", problems)
	}
}

func TestSQLiteStorePersistFailureKeepsMemoryState(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_ = store.DB().Close()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateExpert(domain.Expert{Name: "李四", Level: 3})
		return err
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(store.ListExperts()) != 1 {
		t.Fatalf("expected in-memory commit to survive persistence failure")
	}
}
