// Package domain defines the persistent entities, value types, and rule
// evaluation primitives used by kolcrm.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityExpert identifies a tracked key opinion leader.
	EntityExpert EntityType = "expert"
	// EntityVisit identifies a visit record attached to an expert.
	EntityVisit EntityType = "visit"
)

// Level is the 1..5 attitude stage of an expert (S1..S5).
type Level int

// Canonical attitude stages.
const (
	LevelAwareness   Level = 1
	LevelExploration Level = 2
	LevelEvaluation  Level = 3
	LevelOptimizing  Level = 4
	LevelAdvocate    Level = 5

	// BaselineLevel applies to experts without any recorded visit.
	BaselineLevel = LevelEvaluation
	MinLevel      = LevelAwareness
	MaxLevel      = LevelAdvocate
)

var levelLabels = map[Level]string{
	LevelAwareness:   "S1 认知萌芽",
	LevelExploration: "S2 探索意愿",
	LevelEvaluation:  "S3 综合评估",
	LevelOptimizing:  "S4 处方优化",
	LevelAdvocate:    "S5 观念领袖",
}

// Levels returns all valid levels in ascending order.
func Levels() []Level {
	return []Level{LevelAwareness, LevelExploration, LevelEvaluation, LevelOptimizing, LevelAdvocate}
}

// Valid reports whether l lies within [MinLevel, MaxLevel].
func (l Level) Valid() bool { return l >= MinLevel && l <= MaxLevel }

// Code renders the short stage code, e.g. "S3".
func (l Level) Code() string { return fmt.Sprintf("S%d", int(l)) }

// Label renders the display label, falling back to the code for unknown levels.
func (l Level) Label() string {
	if label, ok := levelLabels[l]; ok {
		return label
	}
	return l.Code()
}

// Date is a calendar date in YYYY-MM-DD form. Lexical order equals chronological order.
type Date string

// DateLayout is the canonical layout of Date values.
const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date { return Date(t.Format(DateLayout)) }

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns the date at midnight UTC. Invalid dates yield the zero time.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Sentinels used when affiliation data is missing or a referenced expert is gone.
const (
	UnknownHospital   = "未知医院"
	UnknownDepartment = "未知科室"
	DeletedExpertName = "已删除"
)

// Base carries identifier and timestamps shared by persisted entities.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expert is a tracked key opinion leader.
type Expert struct {
	Base
	Name       string `json:"name"`
	Hospital   string `json:"hospital"`
	Department string `json:"department"`
	Level      Level  `json:"level"`
	// Seq is the store-assigned insertion order.
	Seq uint64 `json:"seq"`
}

// Visit records one interaction with an expert and the level observed at it.
type Visit struct {
	ID             string    `json:"id"`
	ExpertID       string    `json:"expert_id"`
	Date           Date      `json:"date"`
	Content        string    `json:"content"`
	Level          Level     `json:"level"`
	Products       []string  `json:"products"`
	DiseaseAreas   []string  `json:"disease_areas"`
	CompetitorInfo string    `json:"competitor_info,omitempty"`
	EfficacyInfo   string    `json:"efficacy_info,omitempty"`
	SafetyInfo     string    `json:"safety_info,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Seq            uint64    `json:"seq"`
}

// IntelField names one of the optional intelligence notes of a visit.
type IntelField string

// Intelligence fields carried by a visit.
const (
	IntelCompetitor IntelField = "competitor"
	IntelEfficacy   IntelField = "efficacy"
	IntelSafety     IntelField = "safety"
)

// IntelFields lists the intelligence fields in display order.
func IntelFields() []IntelField {
	return []IntelField{IntelCompetitor, IntelEfficacy, IntelSafety}
}

var intelLabels = map[IntelField]string{
	IntelCompetitor: "竞品信息",
	IntelEfficacy:   "疗效信息",
	IntelSafety:     "安全性信息",
}

// Label renders the display label of the field.
func (f IntelField) Label() string {
	if label, ok := intelLabels[f]; ok {
		return label
	}
	return string(f)
}

// ParseIntelField validates s as an IntelField.
func ParseIntelField(s string) (IntelField, error) {
	switch f := IntelField(s); f {
	case IntelCompetitor, IntelEfficacy, IntelSafety:
		return f, nil
	default:
		return "", fmt.Errorf("unknown intel field %q", s)
	}
}

// Intel returns the value of the named intelligence field.
func (v Visit) Intel(field IntelField) string {
	switch field {
	case IntelCompetitor:
		return v.CompetitorInfo
	case IntelEfficacy:
		return v.EfficacyInfo
	case IntelSafety:
		return v.SafetyInfo
	default:
		return ""
	}
}

// ClearIntel blanks the named intelligence field.
func (v *Visit) ClearIntel(field IntelField) {
	switch field {
	case IntelCompetitor:
		v.CompetitorInfo = ""
	case IntelEfficacy:
		v.EfficacyInfo = ""
	case IntelSafety:
		v.SafetyInfo = ""
	}
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rules: %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}

// ErrPersistence marks a failed durable write. The in-memory state was committed.
var ErrPersistence = errors.New("persistence failed")
