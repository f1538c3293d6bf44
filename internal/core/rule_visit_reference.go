package core

import (
	"context"
	"fmt"

	"kolcrm/pkg/domain"
)

// NewVisitReferenceRule blocks visits that reference a missing expert.
func NewVisitReferenceRule() domain.Rule {
	return visitReferenceRule{}
}

type visitReferenceRule struct{}

func (visitReferenceRule) Name() string { return "visit_reference" }

func (r visitReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityVisit || change.Action == domain.ActionDelete {
			continue
		}
		v, ok := change.After.(domain.Visit)
		if !ok {
			continue
		}
		if _, exists := view.FindVisit(v.ID); !exists {
			continue
		}
		if _, exists := view.FindExpert(v.ExpertID); !exists {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("visit %s references missing expert %s", v.ID, v.ExpertID),
				Entity:   domain.EntityVisit,
				EntityID: v.ID,
			})
		}
	}
	return res, nil
}
