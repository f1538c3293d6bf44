package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kolcrm/internal/blob"
	"kolcrm/internal/derive"
	"kolcrm/internal/notify"
	"kolcrm/pkg/domain"
)

// Artifact kinds, used as the second key segment.
const (
	KindVisits = "visits"
	KindIntel  = "intel"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
	keyTimeLayout   = "20060102T150405Z"
)

// Exporter renders snapshots and stores them under
// exports/<kind>/<timestamp>-<id>.<ext>.
type Exporter struct {
	store    blob.Store
	now      func() time.Time
	newID    func() string
	notifier notify.Notifier
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithExportClock overrides the clock used in keys.
func WithExportClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

// WithExportIDs overrides the generator of the key suffix.
func WithExportIDs(fn func() string) ExporterOption {
	return func(e *Exporter) { e.newID = fn }
}

// WithExportNotifier announces stored artifacts.
func WithExportNotifier(n notify.Notifier) ExporterOption {
	return func(e *Exporter) { e.notifier = n }
}

// NewExporter returns an exporter writing to store.
func NewExporter(store blob.Store, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		notifier: notify.Nop{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StoreVisitsCSV renders the visit CSV and stores it.
func (e *Exporter) StoreVisitsCSV(ctx context.Context, s derive.Snapshot) (blob.Info, error) {
	var buf bytes.Buffer
	if err := WriteVisitsCSV(&buf, s); err != nil {
		return blob.Info{}, fmt.Errorf("render visits csv: %w", err)
	}
	return e.put(ctx, KindVisits, "csv", contentTypeCSV, buf.Bytes(), map[string]string{
		"visits":  fmt.Sprint(len(s.Visits)),
		"version": fmt.Sprint(s.Version),
	})
}

// StoreIntelText renders one intelligence field as text and stores it.
func (e *Exporter) StoreIntelText(ctx context.Context, s derive.Snapshot, field domain.IntelField) (blob.Info, error) {
	var buf bytes.Buffer
	if err := WriteIntelText(&buf, s, field); err != nil {
		return blob.Info{}, fmt.Errorf("render %s intel: %w", field, err)
	}
	return e.put(ctx, KindIntel, "txt", contentTypeText, buf.Bytes(), map[string]string{
		"field":   string(field),
		"version": fmt.Sprint(s.Version),
	})
}

// List returns stored artifacts of kind, or of every kind when kind is empty.
func (e *Exporter) List(ctx context.Context, kind string) ([]blob.Info, error) {
	prefix := "exports/"
	if kind != "" {
		prefix += kind + "/"
	}
	return e.store.List(ctx, prefix)
}

func (e *Exporter) put(ctx context.Context, kind, ext, contentType string, data []byte, meta map[string]string) (blob.Info, error) {
	key := fmt.Sprintf("exports/%s/%s-%s.%s", kind, e.now().UTC().Format(keyTimeLayout), e.newID(), ext)
	info, err := e.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType, Metadata: meta})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store %s: %w", key, err)
	}
	url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{})
	switch {
	case err == nil:
		info.URL = url
	case !errors.Is(err, blob.ErrUnsupported):
		return blob.Info{}, fmt.Errorf("presign %s: %w", key, err)
	}
	e.notifier.Notify(ctx, notify.Event{Kind: notify.KindExportStored, Message: "导出文件已保存", Count: 1, At: e.now()})
	return info, nil
}
