package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// ExpvarMetricsRecorder publishes operation counters and cumulative latency
// under /debug/vars. Each operation gets an expvar.Map with "success",
// "error" and "duration_ms" keys.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex // guards creation of per-operation maps
	ops  *expvar.Map
}

// NewExpvarMetricsRecorder publishes the recorder as name, or as a generated
// kolcrm_service_metrics_N when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("kolcrm_service_metrics_%d", expvarSeq.Add(1))
	}
	return &ExpvarMetricsRecorder{name: name, ops: expvar.NewMap(name)}
}

// Name returns the published expvar name.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	op, ok := r.ops.Get(operation).(*expvar.Map)
	if !ok {
		op = new(expvar.Map).Init()
		r.ops.Set(operation, op)
	}
	r.mu.Unlock()
	if success {
		op.Add("success", 1)
	} else {
		op.Add("error", 1)
	}
	op.AddFloat("duration_ms", float64(duration)/float64(time.Millisecond))
}

// Count returns the number of observations of operation with the given
// outcome.
func (r *ExpvarMetricsRecorder) Count(operation string, success bool) int64 {
	op, ok := r.ops.Get(operation).(*expvar.Map)
	if !ok {
		return 0
	}
	key := "error"
	if success {
		key = "success"
	}
	if v, ok := op.Get(key).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

// JSONTraceEntry is one finished span.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// JSONTraceTracer appends spans as JSON lines to a writer and keeps them in
// memory. It suits local runs without a collector.
type JSONTraceTracer struct {
	mu      sync.Mutex
	w       io.Writer
	entries []JSONTraceEntry
}

// NewJSONTracer writes spans to w, which may be nil.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	return &JSONTraceTracer{w: w}
}

// Entries returns a copy of the finished spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.w != nil {
		_ = json.NewEncoder(t.w).Encode(entry)
	}
}

type jsonSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s jsonSpan) End(err error) {
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(time.Since(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.tracer.finish(entry)
}
