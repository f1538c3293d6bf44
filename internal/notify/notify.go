// Package notify delivers user-visible confirmation events emitted after
// successful store mutations. Delivery is fire-and-forget: a failed or slow
// notifier never affects the outcome of the mutation that produced the event.
package notify

import (
	"context"
	"time"
)

// Kind classifies a confirmation event.
type Kind string

// Event kinds, one per mutating operation.
const (
	KindExpertsImported Kind = "experts_imported"
	KindRosterSeeded    Kind = "roster_seeded"
	KindVisitRecorded   Kind = "visit_recorded"
	KindVisitDeleted    Kind = "visit_deleted"
	KindIntelCleared    Kind = "intel_cleared"
	KindLevelsUpdated   Kind = "levels_updated"
	KindExpertsDeleted  Kind = "experts_deleted"
	KindExportStored    Kind = "export_stored"
	KindPersistenceLost Kind = "persistence_lost"
)

// Event is a confirmation message addressed to the user.
type Event struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Count   int       `json:"count,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives confirmation events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) {}

// Multi fans an event out to every notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}
