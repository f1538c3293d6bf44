package core

import "kolcrm/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewVisitReferenceRule())
	engine.Register(NewLevelRangeRule())
	engine.Register(NewVocabularyRule())
	engine.Register(NewLevelHistoryRule())
	return engine
}
