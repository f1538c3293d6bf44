package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateExpert(Expert) (Expert, error)
	UpdateExpert(id string, mutator func(*Expert) error) (Expert, error)
	DeleteExpert(id string) error
	CreateVisit(Visit) (Visit, error)
	UpdateVisit(id string, mutator func(*Visit) error) (Visit, error)
	DeleteVisit(id string) error
	FindExpert(id string) (Expert, bool)
	FindVisit(id string) (Visit, bool)
	ListVisitsByExpert(expertID string) []Visit
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	// Version increments with every committed transaction.
	Version() uint64
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetExpert(id string) (Expert, bool)
	ListExperts() []Expert
	GetVisit(id string) (Visit, bool)
	ListVisits() []Visit
}
