// Package derive computes read-side views over an immutable snapshot of
// experts and visits. Every function is pure: the same snapshot and arguments
// always produce the same result, and nothing is cached between calls.
package derive

import (
	"sort"

	"kolcrm/pkg/domain"
)

// Snapshot is a consistent, read-only copy of both collections. Experts and
// visits are held in insertion order.
type Snapshot struct {
	Experts []domain.Expert
	Visits  []domain.Visit
	// Version is the store commit counter the snapshot was taken at.
	Version uint64
}

// ExpertIndex maps expert ids to experts.
func (s Snapshot) ExpertIndex() map[string]domain.Expert {
	idx := make(map[string]domain.Expert, len(s.Experts))
	for _, e := range s.Experts {
		idx[e.ID] = e
	}
	return idx
}

// FindExpert looks up an expert by id.
func (s Snapshot) FindExpert(id string) (domain.Expert, bool) {
	for _, e := range s.Experts {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Expert{}, false
}

// VisitsOf returns the visits of one expert in insertion order.
func (s Snapshot) VisitsOf(expertID string) []domain.Visit {
	var out []domain.Visit
	for _, v := range s.Visits {
		if v.ExpertID == expertID {
			out = append(out, v)
		}
	}
	return out
}

// VisitBefore reports whether a precedes b in chronological order: date
// first, then creation timestamp, then insertion sequence.
func VisitBefore(a, b domain.Visit) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Seq < b.Seq
}

// SortVisits returns a chronologically ordered copy of visits.
func SortVisits(visits []domain.Visit) []domain.Visit {
	out := append([]domain.Visit(nil), visits...)
	sort.SliceStable(out, func(i, j int) bool { return VisitBefore(out[i], out[j]) })
	return out
}

// CurrentLevel returns the level of the chronologically last visit, or the
// baseline level when there are none.
func CurrentLevel(visits []domain.Visit) domain.Level {
	if len(visits) == 0 {
		return domain.BaselineLevel
	}
	last := visits[0]
	for _, v := range visits[1:] {
		if VisitBefore(last, v) {
			last = v
		}
	}
	return last.Level
}

// History returns the timeline of one expert, newest first.
func History(s Snapshot, expertID string) []domain.Visit {
	sorted := SortVisits(s.VisitsOf(expertID))
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted
}
