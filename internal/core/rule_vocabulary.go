package core

import (
	"context"
	"fmt"
	"strings"

	"kolcrm/pkg/domain"
)

// NewVocabularyRule blocks new visits tagged with products or disease areas
// outside the fixed vocabularies. Existing visits are not re-checked.
func NewVocabularyRule() domain.Rule {
	return vocabularyRule{}
}

type vocabularyRule struct{}

func (vocabularyRule) Name() string { return "visit_vocabulary" }

func (r vocabularyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityVisit || change.Action != domain.ActionCreate {
			continue
		}
		v, ok := change.After.(domain.Visit)
		if !ok {
			continue
		}
		_, unknownProducts := domain.NormalizeTags(v.Products, domain.Products)
		_, unknownDiseases := domain.NormalizeTags(v.DiseaseAreas, domain.DiseaseAreas)
		unknown := append(unknownProducts, unknownDiseases...)
		if len(unknown) == 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("visit %s has unknown tags: %s", v.ID, strings.Join(unknown, ", ")),
			Entity:   domain.EntityVisit,
			EntityID: v.ID,
		})
	}
	return res, nil
}
