package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/pkg/domain"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil, memory.WithClock(fixedClock()), memory.WithIDGenerator(sequentialIDs("id")))

	var expertID, visitID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		e, err := tx.CreateExpert(domain.Expert{Name: "张三", Hospital: "协和", Department: "内分泌科", Level: domain.BaselineLevel})
		if err != nil {
			return err
		}
		expertID = e.ID
		v, err := tx.CreateVisit(domain.Visit{ExpertID: e.ID, Date: "2024-03-01", Content: "首次拜访", Level: 4, Products: []string{"司美格鲁肽"}})
		if err != nil {
			return err
		}
		visitID = v.ID
		return nil
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	e, ok := store.GetExpert(expertID)
	if !ok || e.Name != "张三" || e.Seq != 1 {
		t.Fatalf("unexpected expert %+v (found=%v)", e, ok)
	}
	if e.CreatedAt.IsZero() || !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Fatalf("expected timestamps stamped, got %+v", e.Base)
	}
	v, ok := store.GetVisit(visitID)
	if !ok || v.Seq != 2 || v.Timestamp.IsZero() {
		t.Fatalf("unexpected visit %+v", v)
	}

	v.Products[0] = "mutated"
	again, _ := store.GetVisit(visitID)
	if again.Products[0] != "司美格鲁肽" {
		t.Fatalf("expected returned visit to be a copy")
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateExpert(expertID, func(e *domain.Expert) error {
			e.Level = 4
			e.Seq = 99
			return nil
		})
		if err != nil {
			return err
		}
		_, err = tx.UpdateVisit(visitID, func(v *domain.Visit) error {
			v.CompetitorInfo = "竞品降价"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	e, _ = store.GetExpert(expertID)
	if e.Level != 4 || e.Seq != 1 {
		t.Fatalf("expected level updated and seq preserved, got %+v", e)
	}
	v, _ = store.GetVisit(visitID)
	if v.CompetitorInfo != "竞品降价" {
		t.Fatalf("expected competitor info updated, got %+v", v)
	}

	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteExpert(expertID)
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.ListExperts()) != 0 || len(store.ListVisits()) != 0 {
		t.Fatalf("expected cascade delete to remove visits")
	}
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateExpert(domain.Expert{Name: "李四", Level: 3}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.ListExperts()) != 0 {
		t.Fatalf("expected no partial state after failed transaction")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "no_visits" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		if c.Entity == domain.EntityVisit && c.Action == domain.ActionCreate {
			res.Violations = append(res.Violations, domain.Violation{Rule: "no_visits", Severity: domain.SeverityBlock, Message: "visits disabled", Entity: domain.EntityVisit})
		}
	}
	return res, nil
}

func TestMemoryStoreBlockingRuleAbortsCommit(t *testing.T) {
	ctx := context.Background()
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := memory.NewStore(engine)

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		e, err := tx.CreateExpert(domain.Expert{Name: "王五", Level: 3})
		if err != nil {
			return err
		}
		_, err = tx.CreateVisit(domain.Visit{ExpertID: e.ID, Date: "2024-01-01", Level: 2})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "no_visits") {
		t.Fatalf("expected rule name in error, got %q", err.Error())
	}
	if len(store.ListExperts()) != 0 {
		t.Fatalf("expected blocked transaction to leave no experts")
	}
}

func TestMemoryStoreVersionAdvancesPerCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	version := func() uint64 {
		var v uint64
		_ = store.View(ctx, func(view domain.TransactionView) error {
			v = view.Version()
			return nil
		})
		return v
	}
	start := version()
	for i := 0; i < 3; i++ {
		if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateExpert(domain.Expert{Name: fmt.Sprintf("专家%d", i), Level: 3})
			return err
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if got := version(); got != start+3 {
		t.Fatalf("expected version %d, got %d", start+3, got)
	}
}

func TestMemoryStoreListVisitsByExpertInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil, memory.WithClock(fixedClock()))
	var got []string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		a, _ := tx.CreateExpert(domain.Expert{Name: "A", Level: 3})
		b, _ := tx.CreateExpert(domain.Expert{Name: "B", Level: 3})
		for _, content := range []string{"one", "two", "three"} {
			if _, err := tx.CreateVisit(domain.Visit{ExpertID: a.ID, Date: "2024-01-01", Content: content, Level: 3}); err != nil {
				return err
			}
		}
		if _, err := tx.CreateVisit(domain.Visit{ExpertID: b.ID, Date: "2024-01-01", Content: "other", Level: 3}); err != nil {
			return err
		}
		for _, v := range tx.ListVisitsByExpert(a.ID) {
			got = append(got, v.Content)
		}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if strings.Join(got, ",") != "one,two,three" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestMemoryStoreDuplicateAndMissingIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateExpert(domain.Expert{Base: domain.Base{ID: "x"}, Name: "X"}); err != nil {
			return err
		}
		_, err := tx.CreateExpert(domain.Expert{Base: domain.Base{ID: "x"}, Name: "Y"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteVisit("missing")
	})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestExportImportRoundTripKeepsSequence(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		e, _ := tx.CreateExpert(domain.Expert{Name: "A", Level: 3})
		_, err := tx.CreateVisit(domain.Visit{ExpertID: e.ID, Date: "2024-01-01", Level: 3})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	restored := memory.NewStore(nil)
	restored.ImportState(store.ExportState())
	if _, err := restored.RunInTransaction(ctx, func(tx domain.Transaction) error {
		e, err := tx.CreateExpert(domain.Expert{Name: "B", Level: 3})
		if err != nil {
			return err
		}
		if e.Seq != 3 {
			return fmt.Errorf("expected seq 3 after import, got %d", e.Seq)
		}
		return nil
	}); err != nil {
		t.Fatalf("post-import create: %v", err)
	}
}

func TestImportAssignsSequenceToLegacyRecords(t *testing.T) {
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	store := memory.NewStore(nil)
	store.ImportState(memory.Snapshot{
		Experts: map[string]domain.Expert{
			"b": {Base: domain.Base{ID: "b", CreatedAt: newer}, Name: "B", Level: 3},
			"a": {Base: domain.Base{ID: "a", CreatedAt: older}, Name: "A", Level: 3},
		},
	})
	experts := store.ListExperts()
	if len(experts) != 2 || experts[0].ID != "a" || experts[1].ID != "b" {
		t.Fatalf("expected creation order a,b got %+v", experts)
	}
	if experts[0].Seq == 0 || experts[1].Seq <= experts[0].Seq {
		t.Fatalf("expected ascending sequence numbers, got %d,%d", experts[0].Seq, experts[1].Seq)
	}
}
