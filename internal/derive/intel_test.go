package derive

import (
	"testing"
	"time"

	"kolcrm/pkg/domain"
)

func TestIntelFeedFlattensAndOrders(t *testing.T) {
	s := Snapshot{
		Experts: []domain.Expert{{Base: domain.Base{ID: "e1"}, Name: "张三", Hospital: "协和医院", Department: "内分泌科"}},
		Visits: []domain.Visit{
			{ID: "old", ExpertID: "e1", Date: "2024-01-01", CompetitorInfo: "竞品A", SafetyInfo: "低血糖", Timestamp: baseTime.Add(-time.Hour), Seq: 1},
			{ID: "new", ExpertID: "e1", Date: "2024-01-02", EfficacyInfo: "减重10%", Timestamp: baseTime, Seq: 2},
			{ID: "orphan", ExpertID: "gone", Date: "2024-01-03", CompetitorInfo: "竞品B", Timestamp: baseTime, Seq: 3},
			{ID: "empty", ExpertID: "e1", Date: "2024-01-04", Timestamp: baseTime.Add(time.Hour), Seq: 4},
		},
	}
	items := IntelFeed(s, "")
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d: %+v", len(items), items)
	}
	if items[0].VisitID != "orphan" || items[1].VisitID != "new" {
		t.Fatalf("expected newest first with sequence tiebreak, got %s,%s", items[0].VisitID, items[1].VisitID)
	}
	if items[0].ExpertName != domain.DeletedExpertName {
		t.Fatalf("expected deleted sentinel, got %q", items[0].ExpertName)
	}
	if items[2].Field != domain.IntelCompetitor || items[3].Field != domain.IntelSafety {
		t.Fatalf("expected field order within a visit, got %s,%s", items[2].Field, items[3].Field)
	}
}

func TestIntelFeedFilters(t *testing.T) {
	s := Snapshot{
		Experts: []domain.Expert{
			{Base: domain.Base{ID: "e1"}, Name: "张三", Hospital: "协和医院"},
			{Base: domain.Base{ID: "e2"}, Name: "李四", Hospital: "瑞金医院"},
		},
		Visits: []domain.Visit{
			{ID: "1", ExpertID: "e1", CompetitorInfo: "Tirzepatide pricing", Timestamp: baseTime, Seq: 1},
			{ID: "2", ExpertID: "e2", CompetitorInfo: "医保谈判", EfficacyInfo: "有效", Timestamp: baseTime, Seq: 2},
		},
	}
	if got := IntelFeed(s, "tirzepatide"); len(got) != 1 || got[0].VisitID != "1" {
		t.Fatalf("expected case-insensitive text match, got %+v", got)
	}
	if got := IntelFeed(s, "瑞金"); len(got) != 2 {
		t.Fatalf("expected hospital match on both items, got %+v", got)
	}
	if got := IntelFeed(s, "李四", domain.IntelEfficacy); len(got) != 1 || got[0].Field != domain.IntelEfficacy {
		t.Fatalf("expected field filter, got %+v", got)
	}
}
