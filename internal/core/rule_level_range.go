package core

import (
	"context"
	"fmt"

	"kolcrm/pkg/domain"
)

// NewLevelRangeRule blocks writes that store a level outside S1..S5.
func NewLevelRangeRule() domain.Rule {
	return levelRangeRule{}
}

type levelRangeRule struct{}

func (levelRangeRule) Name() string { return "level_range" }

func (r levelRangeRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		var (
			id    string
			level domain.Level
		)
		switch after := change.After.(type) {
		case domain.Expert:
			id, level = after.ID, after.Level
		case domain.Visit:
			id, level = after.ID, after.Level
		default:
			continue
		}
		if !level.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s %s has level %d outside %d..%d", change.Entity, id, level, domain.MinLevel, domain.MaxLevel),
				Entity:   change.Entity,
				EntityID: id,
			})
		}
	}
	return res, nil
}
