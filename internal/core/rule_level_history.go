package core

import (
	"context"
	"fmt"
	"sort"

	"kolcrm/internal/derive"
	"kolcrm/pkg/domain"
)

// NewLevelHistoryRule blocks transactions that leave a touched expert with a
// level different from the level derived from their visit history.
func NewLevelHistoryRule() domain.Rule {
	return levelHistoryRule{}
}

type levelHistoryRule struct{}

func (levelHistoryRule) Name() string { return "level_history" }

func (r levelHistoryRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[string]bool)
	for _, change := range changes {
		if !affectsLevel(change) {
			continue
		}
		for _, side := range []any{change.Before, change.After} {
			switch rec := side.(type) {
			case domain.Expert:
				touched[rec.ID] = true
			case domain.Visit:
				touched[rec.ExpertID] = true
			}
		}
	}
	if len(touched) == 0 {
		return domain.Result{}, nil
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	byExpert := make(map[string][]domain.Visit)
	for _, v := range view.ListVisits() {
		if touched[v.ExpertID] {
			byExpert[v.ExpertID] = append(byExpert[v.ExpertID], v)
		}
	}
	res := domain.Result{}
	for _, id := range ids {
		e, ok := view.FindExpert(id)
		if !ok {
			continue
		}
		if want := derive.CurrentLevel(byExpert[id]); e.Level != want {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("expert %s level S%d does not match history S%d", id, e.Level, want),
				Entity:   domain.EntityExpert,
				EntityID: id,
			})
		}
	}
	return res, nil
}

// affectsLevel reports whether change can move a derived level. Visit edits
// that keep the owner, date and level cannot.
func affectsLevel(change domain.Change) bool {
	if change.Entity != domain.EntityVisit || change.Action != domain.ActionUpdate {
		return true
	}
	before, okB := change.Before.(domain.Visit)
	after, okA := change.After.(domain.Visit)
	if !okB || !okA {
		return true
	}
	return before.Level != after.Level || before.Date != after.Date || before.ExpertID != after.ExpertID
}
