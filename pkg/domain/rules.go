package domain

import (
	"context"
	"fmt"
)

// RuleView is the read side of a transaction as seen by rules. It reflects
// the pending state, changes included.
type RuleView interface {
	ListExperts() []Expert
	ListVisits() []Visit
	FindExpert(id string) (Expert, bool)
	FindVisit(id string) (Visit, bool)
}

// Rule checks the pending state of a transaction before it commits.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine runs rules in registration order.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine returns an engine with no rules.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends rule.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns a copy of the registered rules.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs every rule against view. Violations without a rule name are
// attributed to the rule that reported them. A rule error or a cancelled
// context stops evaluation.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	if len(changes) == 0 {
		return Result{}, nil
	}
	var combined Result
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		for i := range res.Violations {
			if res.Violations[i].Rule == "" {
				res.Violations[i].Rule = rule.Name()
			}
		}
		combined.Merge(res)
	}
	return combined, nil
}
