package derive

import (
	"time"

	"kolcrm/pkg/domain"
)

// DefaultUpgradeWindow is the trailing window used by the dashboard.
const DefaultUpgradeWindow = 30 * 24 * time.Hour

// LevelCount is one bar of the level histogram.
type LevelCount struct {
	Level domain.Level `json:"level"`
	Label string       `json:"label"`
	Count int          `json:"count"`
}

// IntelCounts counts visits carrying each intelligence field.
type IntelCounts struct {
	Competitor int `json:"competitor"`
	Efficacy   int `json:"efficacy"`
	Safety     int `json:"safety"`
}

// Mention counts visits tagged with one vocabulary entry.
type Mention struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Upgrade records an expert whose latest recent visit raised their level.
type Upgrade struct {
	ExpertID   string       `json:"expert_id"`
	ExpertName string       `json:"expert_name"`
	From       domain.Level `json:"from"`
	To         domain.Level `json:"to"`
	Date       domain.Date  `json:"date"`
}

// Dashboard aggregates every overview figure for one snapshot.
type Dashboard struct {
	TotalExperts  int          `json:"total_experts"`
	TotalVisits   int          `json:"total_visits"`
	Histogram     []LevelCount `json:"histogram"`
	DominantLevel domain.Level `json:"dominant_level,omitempty"`
	Intel         IntelCounts  `json:"intel"`
	Products      []Mention    `json:"products"`
	DiseaseAreas  []Mention    `json:"disease_areas"`
	Upgrades      []Upgrade    `json:"upgrades"`
}

// LevelHistogram counts experts per level, S1 through S5. Experts carrying an
// out-of-range level are not counted.
func LevelHistogram(experts []domain.Expert) []LevelCount {
	counts := make(map[domain.Level]int, 5)
	for _, e := range experts {
		counts[e.Level]++
	}
	out := make([]LevelCount, 0, 5)
	for _, l := range domain.Levels() {
		out = append(out, LevelCount{Level: l, Label: l.Label(), Count: counts[l]})
	}
	return out
}

// DominantLevel returns the most populated level. Ties go to the lowest
// level. It reports false when the histogram is empty.
func DominantLevel(histogram []LevelCount) (domain.Level, bool) {
	var best LevelCount
	found := false
	for _, c := range histogram {
		if c.Count == 0 {
			continue
		}
		if !found || c.Count > best.Count || (c.Count == best.Count && c.Level < best.Level) {
			best = c
			found = true
		}
	}
	return best.Level, found
}

// CountIntel counts visits with a non-empty value for each intelligence field.
func CountIntel(visits []domain.Visit) IntelCounts {
	var c IntelCounts
	for _, v := range visits {
		if v.CompetitorInfo != "" {
			c.Competitor++
		}
		if v.EfficacyInfo != "" {
			c.Efficacy++
		}
		if v.SafetyInfo != "" {
			c.Safety++
		}
	}
	return c
}

func mentions(vocab []string, visits []domain.Visit, tags func(domain.Visit) []string) []Mention {
	counts := make(map[string]int, len(vocab))
	for _, v := range visits {
		seen := make(map[string]bool)
		for _, t := range tags(v) {
			if seen[t] {
				continue
			}
			seen[t] = true
			counts[t]++
		}
	}
	out := make([]Mention, 0, len(vocab))
	for _, name := range vocab {
		out = append(out, Mention{Name: name, Count: counts[name]})
	}
	return out
}

// ProductMentions counts visits per product, in vocabulary order with zeros kept.
func ProductMentions(visits []domain.Visit) []Mention {
	return mentions(domain.Products, visits, func(v domain.Visit) []string { return v.Products })
}

// DiseaseMentions counts visits per disease area, in vocabulary order with zeros kept.
func DiseaseMentions(visits []domain.Visit) []Mention {
	return mentions(domain.DiseaseAreas, visits, func(v domain.Visit) []string { return v.DiseaseAreas })
}

// RecentUpgrades lists experts, in insertion order, whose latest visit falls
// within window of now and whose level rose relative to the visit before it.
// The preceding visit may lie outside the window.
func RecentUpgrades(s Snapshot, now time.Time, window time.Duration) []Upgrade {
	cutoff := domain.DateOf(now.Add(-window))
	byExpert := make(map[string][]domain.Visit)
	for _, v := range s.Visits {
		byExpert[v.ExpertID] = append(byExpert[v.ExpertID], v)
	}
	out := make([]Upgrade, 0)
	for _, e := range s.Experts {
		visits := byExpert[e.ID]
		if len(visits) < 2 {
			continue
		}
		sorted := SortVisits(visits)
		latest, previous := sorted[len(sorted)-1], sorted[len(sorted)-2]
		if latest.Date < cutoff {
			continue
		}
		if latest.Level > previous.Level {
			out = append(out, Upgrade{
				ExpertID:   e.ID,
				ExpertName: e.Name,
				From:       previous.Level,
				To:         latest.Level,
				Date:       latest.Date,
			})
		}
	}
	return out
}

// BuildDashboard computes every overview figure at instant now.
func BuildDashboard(s Snapshot, now time.Time) Dashboard {
	hist := LevelHistogram(s.Experts)
	d := Dashboard{
		TotalExperts: len(s.Experts),
		TotalVisits:  len(s.Visits),
		Histogram:    hist,
		Intel:        CountIntel(s.Visits),
		Products:     ProductMentions(s.Visits),
		DiseaseAreas: DiseaseMentions(s.Visits),
		Upgrades:     RecentUpgrades(s, now, DefaultUpgradeWindow),
	}
	if dominant, ok := DominantLevel(hist); ok {
		d.DominantLevel = dominant
	}
	return d
}
