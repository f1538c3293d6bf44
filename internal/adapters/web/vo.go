package web

import (
	"time"

	"github.com/ecodeclub/ekit/slice"

	"kolcrm/internal/core"
	"kolcrm/pkg/domain"
)

// Expert is the wire form of an expert.
type Expert struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Hospital   string `json:"hospital"`
	Department string `json:"department"`
	Level      int    `json:"level"`
	LevelLabel string `json:"level_label"`
}

func newExpert(e domain.Expert) Expert {
	return Expert{
		ID:         e.ID,
		Name:       e.Name,
		Hospital:   e.Hospital,
		Department: e.Department,
		Level:      int(e.Level),
		LevelLabel: e.Level.Label(),
	}
}

func newExperts(experts []domain.Expert) []Expert {
	return slice.Map(experts, func(_ int, src domain.Expert) Expert { return newExpert(src) })
}

// Visit is the wire form of a visit.
type Visit struct {
	ID             string    `json:"id"`
	ExpertID       string    `json:"expert_id"`
	Date           string    `json:"date"`
	Content        string    `json:"content"`
	Level          int       `json:"level"`
	Products       []string  `json:"products"`
	DiseaseAreas   []string  `json:"disease_areas"`
	CompetitorInfo string    `json:"competitor_info"`
	EfficacyInfo   string    `json:"efficacy_info"`
	SafetyInfo     string    `json:"safety_info"`
	Timestamp      time.Time `json:"timestamp"`
}

func newVisit(v domain.Visit) Visit {
	return Visit{
		ID:             v.ID,
		ExpertID:       v.ExpertID,
		Date:           string(v.Date),
		Content:        v.Content,
		Level:          int(v.Level),
		Products:       nonNil(v.Products),
		DiseaseAreas:   nonNil(v.DiseaseAreas),
		CompetitorInfo: v.CompetitorInfo,
		EfficacyInfo:   v.EfficacyInfo,
		SafetyInfo:     v.SafetyInfo,
		Timestamp:      v.Timestamp,
	}
}

func newVisits(visits []domain.Visit) []Visit {
	return slice.Map(visits, func(_ int, src domain.Visit) Visit { return newVisit(src) })
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ExpertDetail is an expert with their timeline, newest first.
type ExpertDetail struct {
	Expert  Expert  `json:"expert"`
	History []Visit `json:"history"`
}

// LoginReq carries the shared passcode.
type LoginReq struct {
	Passcode string `json:"passcode"`
}

// ImportReq carries pasted roster text.
type ImportReq struct {
	Text string `json:"text"`
}

// VisitReq is the visit form. Level 0 keeps the expert's current level and an
// empty date means today.
type VisitReq struct {
	Date           string   `json:"date"`
	Content        string   `json:"content"`
	Level          int      `json:"level"`
	Products       []string `json:"products"`
	DiseaseAreas   []string `json:"disease_areas"`
	CompetitorInfo string   `json:"competitor_info"`
	EfficacyInfo   string   `json:"efficacy_info"`
	SafetyInfo     string   `json:"safety_info"`
}

func (r VisitReq) input() core.VisitInput {
	return core.VisitInput{
		Date:           domain.Date(r.Date),
		Content:        r.Content,
		Level:          domain.Level(r.Level),
		Products:       r.Products,
		DiseaseAreas:   r.DiseaseAreas,
		CompetitorInfo: r.CompetitorInfo,
		EfficacyInfo:   r.EfficacyInfo,
		SafetyInfo:     r.SafetyInfo,
	}
}

// BatchLevelReq moves every listed expert to Level.
type BatchLevelReq struct {
	IDs   []string `json:"ids"`
	Level int      `json:"level"`
	Note  string   `json:"note"`
}

// BatchDeleteReq deletes the listed experts. Confirm must equal the number of
// ids, mirroring the count shown in the confirmation prompt.
type BatchDeleteReq struct {
	IDs     []string `json:"ids"`
	Confirm int      `json:"confirm"`
}

// Meta lists the fixed vocabularies a client needs to build forms.
type Meta struct {
	Levels       []LevelOption `json:"levels"`
	Products     []string      `json:"products"`
	DiseaseAreas []string      `json:"disease_areas"`
	IntelFields  []IntelOption `json:"intel_fields"`
}

// LevelOption is one selectable level.
type LevelOption struct {
	Level int    `json:"level"`
	Label string `json:"label"`
}

// IntelOption is one intelligence field.
type IntelOption struct {
	Field string `json:"field"`
	Label string `json:"label"`
}

func newMeta() Meta {
	return Meta{
		Levels: slice.Map(domain.Levels(), func(_ int, l domain.Level) LevelOption {
			return LevelOption{Level: int(l), Label: l.Label()}
		}),
		Products:     domain.Products,
		DiseaseAreas: domain.DiseaseAreas,
		IntelFields: slice.Map(domain.IntelFields(), func(_ int, f domain.IntelField) IntelOption {
			return IntelOption{Field: string(f), Label: f.Label()}
		}),
	}
}
