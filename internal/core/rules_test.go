package core

import (
	"context"
	"errors"
	"testing"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/pkg/domain"
)

func blockedBy(t *testing.T, err error) string {
	t.Helper()
	var rv RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, v := range rv.Result.Violations {
		if v.Severity == SeverityBlock {
			return v.Rule
		}
	}
	t.Fatalf("no blocking violation in %+v", rv.Result)
	return ""
}

func TestDefaultRulesEngineRegistersPolicies(t *testing.T) {
	names := map[string]bool{}
	for _, r := range NewDefaultRulesEngine().Rules() {
		names[r.Name()] = true
	}
	for _, want := range []string{"visit_reference", "level_range", "visit_vocabulary", "level_history"} {
		if !names[want] {
			t.Fatalf("missing rule %s in %v", want, names)
		}
	}
	if len(NewRulesEngine().Rules()) != 0 {
		t.Fatalf("expected empty engine")
	}
}

func TestRulesBlockInconsistentWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateExpert(Expert{Base: domain.Base{ID: "e1"}, Name: "张三", Level: domain.BaselineLevel})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cases := []struct {
		name string
		rule string
		fn   func(tx Transaction) error
	}{
		{"orphan visit", "visit_reference", func(tx Transaction) error {
			_, err := tx.CreateVisit(Visit{ExpertID: "ghost", Date: "2024-05-01", Level: 3})
			return err
		}},
		{"level out of range", "level_range", func(tx Transaction) error {
			_, err := tx.UpdateExpert("e1", func(e *Expert) error { e.Level = 7; return nil })
			return err
		}},
		{"unknown product", "visit_vocabulary", func(tx Transaction) error {
			_, err := tx.CreateVisit(Visit{ExpertID: "e1", Date: "2024-05-01", Level: 3, Products: []string{"阿司匹林"}})
			return err
		}},
		{"level drifts from history", "level_history", func(tx Transaction) error {
			_, err := tx.CreateVisit(Visit{ExpertID: "e1", Date: "2024-05-01", Level: 5})
			return err
		}},
		{"expert level edited without visit", "level_history", func(tx Transaction) error {
			_, err := tx.UpdateExpert("e1", func(e *Expert) error { e.Level = 4; return nil })
			return err
		}},
	}
	for _, tc := range cases {
		_, err := store.RunInTransaction(ctx, tc.fn)
		if got := blockedBy(t, err); got != tc.rule {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.rule, got)
		}
	}
	if len(store.ListVisits()) != 0 {
		t.Fatalf("blocked transactions leaked visits")
	}
}

func TestLevelHistoryIgnoresNoteEdits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	// Legacy data: the stored level disagrees with history.
	store.ImportState(memory.Snapshot{
		Experts: map[string]Expert{"e1": {Base: domain.Base{ID: "e1"}, Name: "张三", Level: 5}},
		Visits: map[string]Visit{"v1": {
			ID: "v1", ExpertID: "e1", Date: "2024-05-01", Level: 2, CompetitorInfo: "旧情报",
		}},
	})
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateVisit("v1", func(v *Visit) error { v.ClearIntel(domain.IntelCompetitor); return nil })
		return err
	}); err != nil {
		t.Fatalf("note edit blocked on legacy data: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateVisit("v1", func(v *Visit) error { v.Level = 3; return nil })
		return err
	})
	if got := blockedBy(t, err); got != "level_history" {
		t.Fatalf("expected level_history, got %s", got)
	}
}
