package export

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"kolcrm/internal/infra/blob/fs"
	"kolcrm/internal/infra/blob/memory"
	"kolcrm/internal/notify"
	"kolcrm/pkg/domain"
)

type countingNotifier struct{ events []notify.Event }

func (c *countingNotifier) Notify(_ context.Context, e notify.Event) { c.events = append(c.events, e) }

func TestExporterStoresArtifacts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	n := &countingNotifier{}
	ids := []string{"a", "b"}
	exp := NewExporter(store,
		WithExportClock(func() time.Time { return baseTime }),
		WithExportIDs(func() string { id := ids[0]; ids = ids[1:]; return id }),
		WithExportNotifier(n),
	)

	info, err := exp.StoreVisitsCSV(ctx, sampleSnapshot())
	if err != nil {
		t.Fatalf("store csv: %v", err)
	}
	if info.Key != "exports/visits/20240520T090000Z-a.csv" || info.ContentType != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected info %+v", info)
	}
	_, rc, err := store.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.HasPrefix(string(body), BOM) {
		t.Fatalf("expected stored csv to carry BOM")
	}

	info, err = exp.StoreIntelText(ctx, sampleSnapshot(), domain.IntelEfficacy)
	if err != nil {
		t.Fatalf("store text: %v", err)
	}
	if info.Key != "exports/intel/20240520T090000Z-b.txt" || info.Metadata["field"] != "efficacy" {
		t.Fatalf("unexpected info %+v", info)
	}
	all, err := exp.List(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("unexpected list %+v %v", all, err)
	}
	visits, _ := exp.List(ctx, KindVisits)
	if len(visits) != 1 {
		t.Fatalf("expected one visits export, got %d", len(visits))
	}
	if len(n.events) != 2 || n.events[0].Kind != notify.KindExportStored {
		t.Fatalf("unexpected events %+v", n.events)
	}
	if _, err := exp.StoreIntelText(ctx, sampleSnapshot(), "price"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestExporterAttachesLocalURL(t *testing.T) {
	store, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	info, err := NewExporter(store).StoreVisitsCSV(context.Background(), sampleSnapshot())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(info.URL, "http://local.blob/exports/visits/") {
		t.Fatalf("expected local url, got %q", info.URL)
	}
}
