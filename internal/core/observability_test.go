package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopObservability(_ *testing.T) {
	var logger Logger = noopLogger{}
	logger.Debug("debug", "key", "value")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	noopMetricsRecorder{}.Observe(context.Background(), "op", true, time.Millisecond)
	_, span := noopTracer{}.Start(context.Background(), "op")
	span.End(nil)
}

func TestZerologLoggerWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger("production", "kolcrm", &buf)
	logger.Warn("change committed but not persisted", "operation", "record_visit", "error", errors.New("disk full"))
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry["operation"] != "record_visit" || entry["service"] != "kolcrm" || entry["error"] != "disk full" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestZerologLoggerConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	NewZerologLogger("development", "kolcrm", &buf).Info("storage opened", "driver", "sqlite")
	if out := buf.String(); !strings.Contains(out, "storage opened") || strings.HasPrefix(out, "{") {
		t.Fatalf("expected console output, got %q", out)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "record_visit", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "record_visit", false, time.Millisecond)
	rec.Observe(context.Background(), "record_visit", true, time.Millisecond)
	if got := testutil.ToFloat64(rec.total.WithLabelValues("record_visit", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(rec.total.WithLabelValues("record_visit", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestExpvarMetricsRecorderCounts(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "kolcrm_service_metrics_") {
		t.Fatalf("unexpected expvar name %q", rec.Name())
	}
	MultiMetricsRecorder{rec, nil}.Observe(context.Background(), "delete_visit", true, 3*time.Millisecond)
	rec.Observe(context.Background(), "delete_visit", false, time.Millisecond)
	if rec.Count("delete_visit", true) != 1 || rec.Count("delete_visit", false) != 1 {
		t.Fatalf("unexpected counts %d/%d", rec.Count("delete_visit", true), rec.Count("delete_visit", false))
	}
	if rec.Count("unknown", true) != 0 {
		t.Fatalf("expected zero for unseen operation")
	}
}

func TestOTelTracerRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := NewOTelTracer(tp)

	_, span := tracer.Start(context.Background(), "batch_update_level")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "delete_visit")
	span.End(errors.New("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "kolcrm.batch_update_level" || spans[0].Status.Code != codes.Ok {
		t.Fatalf("unexpected first span %+v", spans[0])
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "boom" {
		t.Fatalf("unexpected error span status %+v", spans[1].Status)
	}
}

func TestJSONTracerEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "import_experts")
	span.End(nil)
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "import_experts" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !strings.Contains(buf.String(), "import_experts") {
		t.Fatalf("expected JSON line, got %q", buf.String())
	}
}
