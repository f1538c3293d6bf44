// Package memory provides an in-memory implementation of the kolcrm
// persistence store. Durable backends embed it and snapshot its state after
// every committed transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kolcrm/pkg/domain"

	"github.com/google/uuid"
)

var _ domain.PersistentStore = (*Store)(nil)

type (
	// Expert aliases domain.Expert for in-memory persistence operations.
	Expert = domain.Expert
	// Visit aliases domain.Visit.
	Visit = domain.Visit
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	experts map[string]Expert
	visits  map[string]Visit
	seq     uint64
	version uint64
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Experts map[string]Expert `json:"experts"`
	Visits  map[string]Visit  `json:"visits"`
}

func newMemoryState() memoryState {
	return memoryState{
		experts: make(map[string]Expert),
		visits:  make(map[string]Visit),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Experts: make(map[string]Expert, len(state.experts)),
		Visits:  make(map[string]Visit, len(state.visits)),
	}
	for k, v := range state.experts {
		s.Experts[k] = v
	}
	for k, v := range state.visits {
		s.Visits[k] = cloneVisit(v)
	}
	return s
}

// memoryStateFromSnapshot rebuilds state from a snapshot. Records without an
// id are dropped and records without a sequence number are numbered after
// the highest one present, ordered by creation time.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	var unsequencedExperts []Expert
	for id, e := range s.Experts {
		if e.ID == "" {
			e.ID = id
		}
		if e.ID == "" {
			continue
		}
		if e.Seq == 0 {
			unsequencedExperts = append(unsequencedExperts, e)
			continue
		}
		state.experts[e.ID] = e
		state.seq = max(state.seq, e.Seq)
	}
	var unsequencedVisits []Visit
	for id, v := range s.Visits {
		if v.ID == "" {
			v.ID = id
		}
		if v.ID == "" {
			continue
		}
		if v.Seq == 0 {
			unsequencedVisits = append(unsequencedVisits, v)
			continue
		}
		state.visits[v.ID] = cloneVisit(v)
		state.seq = max(state.seq, v.Seq)
	}
	sort.SliceStable(unsequencedExperts, func(i, j int) bool {
		if !unsequencedExperts[i].CreatedAt.Equal(unsequencedExperts[j].CreatedAt) {
			return unsequencedExperts[i].CreatedAt.Before(unsequencedExperts[j].CreatedAt)
		}
		return unsequencedExperts[i].ID < unsequencedExperts[j].ID
	})
	for _, e := range unsequencedExperts {
		state.seq++
		e.Seq = state.seq
		state.experts[e.ID] = e
	}
	sort.SliceStable(unsequencedVisits, func(i, j int) bool {
		if !unsequencedVisits[i].Timestamp.Equal(unsequencedVisits[j].Timestamp) {
			return unsequencedVisits[i].Timestamp.Before(unsequencedVisits[j].Timestamp)
		}
		return unsequencedVisits[i].ID < unsequencedVisits[j].ID
	})
	for _, v := range unsequencedVisits {
		state.seq++
		v.Seq = state.seq
		state.visits[v.ID] = cloneVisit(v)
	}
	return state
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.experts {
		cloned.experts[k] = v
	}
	for k, v := range s.visits {
		cloned.visits[k] = cloneVisit(v)
	}
	cloned.seq = s.seq
	cloned.version = s.version
	return cloned
}

func cloneVisit(v Visit) Visit {
	cp := v
	if v.Products != nil {
		cp.Products = append([]string(nil), v.Products...)
	}
	if v.DiseaseAreas != nil {
		cp.DiseaseAreas = append([]string(nil), v.DiseaseAreas...)
	}
	return cp
}

func sortedExperts(m map[string]Expert) []Expert {
	out := make([]Expert, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func sortedVisits(m map[string]Visit, keep func(Visit) bool) []Visit {
	out := make([]Visit, 0, len(m))
	for _, v := range m {
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, cloneVisit(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Store provides an in-memory transactional store for experts and visits.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock stamped on created and updated records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.idFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version := s.state.version
	s.state = memoryStateFromSnapshot(snapshot)
	s.state.version = version + 1
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListExperts returns all experts in insertion order.
func (v transactionView) ListExperts() []Expert { return sortedExperts(v.state.experts) }

// ListVisits returns all visits in insertion order.
func (v transactionView) ListVisits() []Visit { return sortedVisits(v.state.visits, nil) }

// FindExpert retrieves an expert by id.
func (v transactionView) FindExpert(id string) (Expert, bool) {
	e, ok := v.state.experts[id]
	return e, ok
}

// FindVisit retrieves a visit by id.
func (v transactionView) FindVisit(id string) (Visit, bool) {
	visit, ok := v.state.visits[id]
	if !ok {
		return Visit{}, false
	}
	return cloneVisit(visit), true
}

// Version reports the commit counter the view was taken at.
func (v transactionView) Version() uint64 { return v.state.version }

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no rule blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	tx.state.version++
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// GetExpert returns an expert by id from the committed state.
func (s *Store) GetExpert(id string) (Expert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.experts[id]
	return e, ok
}

// ListExperts returns all committed experts in insertion order.
func (s *Store) ListExperts() []Expert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedExperts(s.state.experts)
}

// GetVisit returns a visit by id from the committed state.
func (s *Store) GetVisit(id string) (Visit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.visits[id]
	if !ok {
		return Visit{}, false
	}
	return cloneVisit(v), true
}

// ListVisits returns all committed visits in insertion order.
func (s *Store) ListVisits() []Visit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedVisits(s.state.visits, nil)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) nextSeq() uint64 {
	tx.state.seq++
	return tx.state.seq
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the instant shared by every write in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// FindExpert exposes expert lookup within the transaction scope.
func (tx *transaction) FindExpert(id string) (Expert, bool) {
	e, ok := tx.state.experts[id]
	return e, ok
}

// FindVisit exposes visit lookup within the transaction scope.
func (tx *transaction) FindVisit(id string) (Visit, bool) {
	v, ok := tx.state.visits[id]
	if !ok {
		return Visit{}, false
	}
	return cloneVisit(v), true
}

// ListVisitsByExpert returns the visits of one expert in insertion order.
func (tx *transaction) ListVisitsByExpert(expertID string) []Visit {
	return sortedVisits(tx.state.visits, func(v Visit) bool { return v.ExpertID == expertID })
}

// CreateExpert stores a new expert within the transaction.
func (tx *transaction) CreateExpert(e Expert) (Expert, error) {
	if e.ID == "" {
		e.ID = tx.store.idFn()
	}
	if _, exists := tx.state.experts[e.ID]; exists {
		return Expert{}, fmt.Errorf("expert %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	e.Seq = tx.nextSeq()
	tx.state.experts[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityExpert, Action: domain.ActionCreate, After: e})
	return e, nil
}

// UpdateExpert mutates an expert using the provided mutator function.
// Identity and insertion order cannot be changed by the mutator.
func (tx *transaction) UpdateExpert(id string, mutator func(*Expert) error) (Expert, error) {
	current, ok := tx.state.experts[id]
	if !ok {
		return Expert{}, fmt.Errorf("expert %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Expert{}, err
	}
	current.ID = id
	current.Seq = before.Seq
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.experts[id] = current
	tx.recordChange(Change{Entity: domain.EntityExpert, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteExpert removes an expert and every visit attached to it.
func (tx *transaction) DeleteExpert(id string) error {
	current, ok := tx.state.experts[id]
	if !ok {
		return fmt.Errorf("expert %q not found", id)
	}
	for _, v := range sortedVisits(tx.state.visits, func(v Visit) bool { return v.ExpertID == id }) {
		delete(tx.state.visits, v.ID)
		tx.recordChange(Change{Entity: domain.EntityVisit, Action: domain.ActionDelete, Before: v})
	}
	delete(tx.state.experts, id)
	tx.recordChange(Change{Entity: domain.EntityExpert, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateVisit stores a new visit. The timestamp defaults to the transaction instant.
func (tx *transaction) CreateVisit(v Visit) (Visit, error) {
	if v.ID == "" {
		v.ID = tx.store.idFn()
	}
	if _, exists := tx.state.visits[v.ID]; exists {
		return Visit{}, fmt.Errorf("visit %q already exists", v.ID)
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = tx.now
	}
	v.Seq = tx.nextSeq()
	tx.state.visits[v.ID] = cloneVisit(v)
	tx.recordChange(Change{Entity: domain.EntityVisit, Action: domain.ActionCreate, After: cloneVisit(v)})
	return cloneVisit(v), nil
}

// UpdateVisit mutates a visit using the provided mutator function.
func (tx *transaction) UpdateVisit(id string, mutator func(*Visit) error) (Visit, error) {
	current, ok := tx.state.visits[id]
	if !ok {
		return Visit{}, fmt.Errorf("visit %q not found", id)
	}
	before := cloneVisit(current)
	current = cloneVisit(current)
	if err := mutator(&current); err != nil {
		return Visit{}, err
	}
	current.ID = id
	current.Seq = before.Seq
	tx.state.visits[id] = cloneVisit(current)
	tx.recordChange(Change{Entity: domain.EntityVisit, Action: domain.ActionUpdate, Before: before, After: cloneVisit(current)})
	return cloneVisit(current), nil
}

// DeleteVisit removes a visit from the transaction state.
func (tx *transaction) DeleteVisit(id string) error {
	current, ok := tx.state.visits[id]
	if !ok {
		return fmt.Errorf("visit %q not found", id)
	}
	delete(tx.state.visits, id)
	tx.recordChange(Change{Entity: domain.EntityVisit, Action: domain.ActionDelete, Before: cloneVisit(current)})
	return nil
}
