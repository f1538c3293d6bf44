package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestFlashExpiresAfterTTL(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	f := NewFlash(3*time.Second, WithFlashClock(c.now))
	f.Notify(context.Background(), Event{Kind: KindVisitRecorded, Message: "已记录"})
	c.t = c.t.Add(time.Second)
	f.Notify(context.Background(), Event{Kind: KindIntelCleared, Message: "已清除"})

	if got := f.Active(); len(got) != 2 || got[0].Kind != KindVisitRecorded {
		t.Fatalf("expected both events active, got %+v", got)
	}
	c.t = c.t.Add(2500 * time.Millisecond)
	got := f.Active()
	if len(got) != 1 || got[0].Kind != KindIntelCleared {
		t.Fatalf("expected first event expired, got %+v", got)
	}
	f.Dismiss()
	if len(f.Active()) != 0 {
		t.Fatalf("expected dismiss to clear events")
	}
}

func TestFlashCapacity(t *testing.T) {
	f := NewFlash(time.Minute, WithFlashCapacity(2))
	for i := 0; i < 5; i++ {
		f.Notify(context.Background(), Event{Kind: KindLevelsUpdated, Count: i})
	}
	got := f.Active()
	if len(got) != 2 || got[0].Count != 3 || got[1].Count != 4 {
		t.Fatalf("expected the two newest events, got %+v", got)
	}
}

func TestNewFlashDefaultsTTL(t *testing.T) {
	if f := NewFlash(0); f.ttl != DefaultFlashTTL {
		t.Fatalf("expected default ttl, got %s", f.ttl)
	}
}

type recordingNotifier struct{ events []Event }

func (r *recordingNotifier) Notify(_ context.Context, e Event) { r.events = append(r.events, e) }

func TestMultiFansOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	Multi{a, nil, b, Nop{}}.Notify(context.Background(), Event{Kind: KindExpertsDeleted, Count: 2})
	if len(a.events) != 1 || len(b.events) != 1 || b.events[0].Count != 2 {
		t.Fatalf("expected both notifiers to receive the event")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaNotifierPublishesJSON(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifier(w, nil)
	at := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	n.Notify(context.Background(), Event{Kind: KindExpertsImported, Message: "导入 3 位专家", Count: 3, At: at})
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != string(KindExpertsImported) {
		t.Fatalf("unexpected key %q", w.msgs[0].Key)
	}
	var decoded Event
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Count != 3 || !decoded.At.Equal(at) {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestKafkaNotifierReportsFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	var failed []Event
	n := NewKafkaNotifier(w, func(e Event, err error) { failed = append(failed, e) })
	n.Notify(context.Background(), Event{Kind: KindVisitDeleted})
	if len(failed) != 1 || failed[0].Kind != KindVisitDeleted {
		t.Fatalf("expected failure callback, got %+v", failed)
	}
}

func TestNewKafkaWriterConfiguresTopic(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "kolcrm.events")
	if w.Topic != "kolcrm.events" {
		t.Fatalf("unexpected topic %q", w.Topic)
	}
}
