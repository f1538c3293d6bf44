package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"kolcrm/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	info, err := s.Put(ctx, "exports/csv/a.csv", strings.NewReader("hello"), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"kind": "csv"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "exports/csv/a.csv", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "exports/csv/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" || got.Metadata["kind"] != "csv" {
		t.Fatalf("unexpected object %q %+v", body, got)
	}
	got.Metadata["kind"] = "mutated"
	if h, _ := s.Head(ctx, "exports/csv/a.csv"); h.Metadata["kind"] != "csv" {
		t.Fatalf("metadata aliased: %+v", h)
	}
}

func TestStoreListDeleteAndMissing(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, k := range []string{"exports/text/b.txt", "exports/csv/z.csv", "exports/csv/a.csv"} {
		if _, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := s.List(ctx, "exports/csv/")
	if err != nil || len(list) != 2 || list[0].Key != "exports/csv/a.csv" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	if ok, _ := s.Delete(ctx, "exports/csv/a.csv"); !ok {
		t.Fatalf("expected delete to report existing key")
	}
	if ok, _ := s.Delete(ctx, "exports/csv/a.csv"); ok {
		t.Fatalf("expected second delete to report missing key")
	}
	if _, err := s.Head(ctx, "exports/csv/a.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "exports/text/b.txt", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported presign, got %v", err)
	}
}
