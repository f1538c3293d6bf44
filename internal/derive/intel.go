package derive

import (
	"sort"
	"strings"
	"time"

	"kolcrm/pkg/domain"
)

// IntelItem is one intelligence note lifted out of a visit.
type IntelItem struct {
	VisitID    string            `json:"visit_id"`
	ExpertID   string            `json:"expert_id"`
	ExpertName string            `json:"expert_name"`
	Department string            `json:"department"`
	Hospital   string            `json:"hospital"`
	Field      domain.IntelField `json:"field"`
	Text       string            `json:"text"`
	Date       domain.Date       `json:"date"`
	Timestamp  time.Time         `json:"timestamp"`
	Seq        uint64            `json:"seq"`
}

// IntelFeed flattens every non-empty intelligence field into its own item,
// newest first by creation timestamp. When fields are given only those kinds
// are included. The query matches text, expert name or hospital, ignoring
// case. Visits whose expert no longer exists carry DeletedExpertName.
func IntelFeed(s Snapshot, query string, fields ...domain.IntelField) []IntelItem {
	if len(fields) == 0 {
		fields = domain.IntelFields()
	}
	q := strings.ToLower(strings.TrimSpace(query))
	experts := s.ExpertIndex()
	items := make([]IntelItem, 0)
	for _, v := range s.Visits {
		e, ok := experts[v.ExpertID]
		name := e.Name
		if !ok {
			name = domain.DeletedExpertName
		}
		for _, f := range fields {
			text := v.Intel(f)
			if text == "" {
				continue
			}
			if q != "" &&
				!strings.Contains(strings.ToLower(text), q) &&
				!strings.Contains(strings.ToLower(name), q) &&
				!strings.Contains(strings.ToLower(e.Hospital), q) {
				continue
			}
			items = append(items, IntelItem{
				VisitID:    v.ID,
				ExpertID:   v.ExpertID,
				ExpertName: name,
				Department: e.Department,
				Hospital:   e.Hospital,
				Field:      f,
				Text:       text,
				Date:       v.Date,
				Timestamp:  v.Timestamp,
				Seq:        v.Seq,
			})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].Seq > items[j].Seq
	})
	return items
}
