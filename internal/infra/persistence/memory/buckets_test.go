package memory_test

import (
	"encoding/json"
	"testing"

	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/pkg/domain"
)

func TestEncodeDecodeBuckets(t *testing.T) {
	snapshot := memory.Snapshot{
		Experts: map[string]domain.Expert{
			"e2": {Base: domain.Base{ID: "e2"}, Name: "李四", Level: 2, Seq: 2},
			"e1": {Base: domain.Base{ID: "e1"}, Name: "张三", Level: 3, Seq: 1},
		},
		Visits: map[string]domain.Visit{
			"v1": {ID: "v1", ExpertID: "e2", Date: "2024-01-02", Level: 2, Seq: 3, Products: []string{"达格列净"}},
		},
	}
	raw, err := memory.EncodeBuckets(snapshot)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var experts []domain.Expert
	if err := json.Unmarshal(raw[memory.BucketExperts], &experts); err != nil {
		t.Fatalf("experts payload is not a JSON array: %v", err)
	}
	if len(experts) != 2 || experts[0].ID != "e1" {
		t.Fatalf("expected experts in sequence order, got %+v", experts)
	}

	decoded, problems := memory.DecodeBuckets(raw)
	if len(problems) != 0 {
		t.Fatalf("unexpected decode problems: %v", problems)
	}
	if len(decoded.Experts) != 2 || decoded.Visits["v1"].Products[0] != "达格列净" {
		t.Fatalf("unexpected decoded snapshot %+v", decoded)
	}
}

func TestDecodeBucketsToleratesMalformedPayload(t *testing.T) {
	raw := map[string][]byte{
		memory.BucketExperts: []byte(`[{"id":"e1","name":"张三","level":3,"seq":1}]`),
		memory.BucketVisits:  []byte(`{not json`),
		"unrelated":          []byte(`garbage`),
	}
	snapshot, problems := memory.DecodeBuckets(raw)
	if len(problems) != 1 || problems[0].Bucket != memory.BucketVisits {
		t.Fatalf("expected a single visits problem, got %v", problems)
	}
	if len(snapshot.Experts) != 1 {
		t.Fatalf("expected experts bucket still loaded")
	}
	if len(snapshot.Visits) != 0 {
		t.Fatalf("expected empty visits collection")
	}
}

func TestDecodeBucketsEmptyInput(t *testing.T) {
	snapshot, problems := memory.DecodeBuckets(nil)
	if len(problems) != 0 || len(snapshot.Experts) != 0 || snapshot.Visits == nil {
		t.Fatalf("expected empty initialised snapshot, got %+v %v", snapshot, problems)
	}
}
