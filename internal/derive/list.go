package derive

import (
	"fmt"
	"sort"
	"strings"

	"kolcrm/pkg/domain"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortOrder selects the expert list ordering.
type SortOrder string

// Supported list orders.
const (
	SortLevelDesc SortOrder = "level-desc"
	SortLevelAsc  SortOrder = "level-asc"
	SortNameAsc   SortOrder = "name-asc"
)

// DefaultSortOrder is used when no order is requested.
const DefaultSortOrder = SortLevelDesc

// nameLocale drives name comparison. Chinese names sort by pinyin.
var nameLocale = language.MustParse("zh-Hans-CN")

// ParseSortOrder validates s; the empty string yields DefaultSortOrder.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "":
		return DefaultSortOrder, nil
	case SortLevelDesc, SortLevelAsc, SortNameAsc:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// FilterExperts keeps experts whose name, department or hospital contains
// query, ignoring case. A blank query keeps everything.
func FilterExperts(experts []domain.Expert, query string) []domain.Expert {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Expert, 0, len(experts))
	for _, e := range experts {
		if q == "" ||
			strings.Contains(strings.ToLower(e.Name), q) ||
			strings.Contains(strings.ToLower(e.Department), q) ||
			strings.Contains(strings.ToLower(e.Hospital), q) {
			out = append(out, e)
		}
	}
	return out
}

// SortExperts returns a copy of experts in the requested order. Ties keep
// their input order.
func SortExperts(experts []domain.Expert, order SortOrder) []domain.Expert {
	out := append([]domain.Expert(nil), experts...)
	switch order {
	case SortLevelAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	case SortNameAsc:
		// Collators keep internal buffers and are not safe for concurrent use.
		c := collate.New(nameLocale)
		sort.SliceStable(out, func(i, j int) bool { return c.CompareString(out[i].Name, out[j].Name) < 0 })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	}
	return out
}

// ExpertList filters then sorts the experts of a snapshot.
func ExpertList(s Snapshot, query string, order SortOrder) []domain.Expert {
	return SortExperts(FilterExperts(s.Experts, query), order)
}
