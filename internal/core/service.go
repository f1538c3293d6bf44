package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kolcrm/internal/derive"
	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/internal/notify"
	"kolcrm/pkg/domain"
)

// Confirmation prompts shown before destructive operations.
const (
	PromptDeleteVisit   = "确定删除这条记录吗？专家观念将回滚到上一条记录的状态。"
	PromptDeleteExperts = "您确定要删除选中的 %d 位专家吗？此操作将同时删除他们的所有拜访记录，且无法恢复。"
)

// DefaultBatchNote formats the visit content written by BatchUpdateLevel when
// the caller supplies no note.
const DefaultBatchNote = "批量更新至 S%d"

// ConfirmFunc asks the user to confirm a destructive operation. A nil
// ConfirmFunc declines.
type ConfirmFunc func(prompt string) bool

// Confirmed answers every prompt with ok.
func Confirmed(ok bool) ConfirmFunc {
	return func(string) bool { return ok }
}

func (c ConfirmFunc) ask(prompt string) bool {
	return c != nil && c(prompt)
}

// VisitInput carries the user-entered fields of a new visit. A zero Date means
// today and a zero Level keeps the expert's current level.
type VisitInput struct {
	Date           domain.Date
	Content        string
	Level          Level
	Products       []string
	DiseaseAreas   []string
	CompetitorInfo string
	EfficacyInfo   string
	SafetyInfo     string
}

// ImportResult reports the experts created by an import.
type ImportResult struct {
	Experts []Expert
}

// Count returns the number of imported experts.
func (r ImportResult) Count() int { return len(r.Experts) }

// BatchResult reports the outcome of a batch level update.
type BatchResult struct {
	Experts []Expert
	Visits  []Visit
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the per-operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the per-operation tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNotifier sets the receiver of confirmation events.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// Service is the only writer of experts and visits. Every mutation runs in a
// single store transaction.
type Service struct {
	store    PersistentStore
	now      func() time.Time
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	notifier notify.Notifier
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   noopLogger{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		notifier: notify.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store sharing the
// service clock.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	s := NewService(nil, opts...)
	s.store = memory.NewStore(engine, memory.WithClock(s.now))
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	if err != nil && errors.Is(err, domain.ErrPersistence) {
		s.logger.Warn("change committed but not persisted", "operation", op, "error", err)
		s.emit(ctx, notify.KindPersistenceLost, "数据保存失败，刷新页面后本次修改可能丢失", 0)
		err = nil
	}
	for _, v := range res.Violations {
		if v.Severity == SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "message", v.Message)
		}
	}
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	span.End(err)
	switch {
	case err == nil:
		s.logger.Debug("operation committed", "operation", op, "duration", time.Since(start))
	case isCallerError(err):
		s.logger.Warn("operation rejected", "operation", op, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return res, err
}

func isCallerError(err error) bool {
	var nf ErrNotFound
	var rv RuleViolationError
	return errors.Is(err, ErrInvalidInput) || errors.As(err, &nf) || errors.As(err, &rv)
}

func (s *Service) emit(ctx context.Context, kind notify.Kind, message string, count int) {
	s.notifier.Notify(ctx, notify.Event{Kind: kind, Message: message, Count: count, At: s.now()})
}

func (s *Service) today() domain.Date {
	return domain.DateOf(s.now())
}

// ImportExperts parses a pasted roster and creates one expert per usable line.
func (s *Service) ImportExperts(ctx context.Context, text string) (ImportResult, error) {
	entries := ParseRoster(text)
	if len(entries) == 0 {
		return ImportResult{}, nil
	}
	var out ImportResult
	_, err := s.run(ctx, "import_experts", func(tx Transaction) error {
		out.Experts = make([]Expert, 0, len(entries))
		for _, e := range entries {
			created, err := tx.CreateExpert(e)
			if err != nil {
				return err
			}
			out.Experts = append(out.Experts, created)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	s.emit(ctx, notify.KindExpertsImported, fmt.Sprintf("成功导入 %d 位专家", out.Count()), out.Count())
	return out, nil
}

// SeedDefaultRoster creates the built-in roster when the store holds no
// experts. It reports how many experts were created.
func (s *Service) SeedDefaultRoster(ctx context.Context) (int, error) {
	var created int
	_, err := s.run(ctx, "seed_roster", func(tx Transaction) error {
		if len(tx.Snapshot().ListExperts()) > 0 {
			return nil
		}
		for _, e := range DefaultRoster() {
			if _, err := tx.CreateExpert(e); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.emit(ctx, notify.KindRosterSeeded, fmt.Sprintf("已载入默认专家名单 %d 位", created), created)
	}
	return created, nil
}

// RecordVisit appends a visit to an expert and updates the expert's level in
// the same transaction.
func (s *Service) RecordVisit(ctx context.Context, expertID string, in VisitInput) (Visit, Expert, error) {
	if in.Level != 0 && !in.Level.Valid() {
		return Visit{}, Expert{}, invalidf("level %d out of range", in.Level)
	}
	date := in.Date
	if date == "" {
		date = s.today()
	} else if _, err := domain.ParseDate(string(date)); err != nil {
		return Visit{}, Expert{}, invalidf("%v", err)
	}
	products, unknown := domain.NormalizeTags(in.Products, domain.Products)
	if len(unknown) > 0 {
		return Visit{}, Expert{}, invalidf("unknown products %s", strings.Join(unknown, ", "))
	}
	diseases, unknown := domain.NormalizeTags(in.DiseaseAreas, domain.DiseaseAreas)
	if len(unknown) > 0 {
		return Visit{}, Expert{}, invalidf("unknown disease areas %s", strings.Join(unknown, ", "))
	}

	var visit Visit
	var expert Expert
	_, err := s.run(ctx, "record_visit", func(tx Transaction) error {
		current, ok := tx.FindExpert(expertID)
		if !ok {
			return ErrNotFound{Entity: EntityExpert, ID: expertID}
		}
		level := in.Level
		if level == 0 {
			level = current.Level
		}
		var err error
		visit, err = tx.CreateVisit(Visit{
			ExpertID:       expertID,
			Date:           date,
			Content:        strings.TrimSpace(in.Content),
			Level:          level,
			Products:       products,
			DiseaseAreas:   diseases,
			CompetitorInfo: strings.TrimSpace(in.CompetitorInfo),
			EfficacyInfo:   strings.TrimSpace(in.EfficacyInfo),
			SafetyInfo:     strings.TrimSpace(in.SafetyInfo),
		})
		if err != nil {
			return err
		}
		expert, err = syncLevel(tx, expertID)
		return err
	})
	if err != nil {
		return Visit{}, Expert{}, err
	}
	s.emit(ctx, notify.KindVisitRecorded, fmt.Sprintf("已记录 %s 的拜访，当前层级 %s", expert.Name, expert.Level.Code()), 1)
	return visit, expert, nil
}

// syncLevel sets the expert's level to the level derived from their history.
func syncLevel(tx Transaction, expertID string) (Expert, error) {
	level := derive.CurrentLevel(tx.ListVisitsByExpert(expertID))
	return tx.UpdateExpert(expertID, func(e *Expert) error {
		e.Level = level
		return nil
	})
}

// DeleteVisit removes a visit after confirmation and rolls the owner back to
// the level of their latest remaining visit. It reports false when the user
// declined.
func (s *Service) DeleteVisit(ctx context.Context, visitID string, confirm ConfirmFunc) (Expert, bool, error) {
	if _, ok := s.store.GetVisit(visitID); !ok {
		return Expert{}, false, ErrNotFound{Entity: EntityVisit, ID: visitID}
	}
	if !confirm.ask(PromptDeleteVisit) {
		return Expert{}, false, nil
	}
	var expert Expert
	var orphan bool
	_, err := s.run(ctx, "delete_visit", func(tx Transaction) error {
		visit, ok := tx.FindVisit(visitID)
		if !ok {
			return ErrNotFound{Entity: EntityVisit, ID: visitID}
		}
		if err := tx.DeleteVisit(visitID); err != nil {
			return err
		}
		if _, ok := tx.FindExpert(visit.ExpertID); !ok {
			orphan = true
			return nil
		}
		var err error
		expert, err = syncLevel(tx, visit.ExpertID)
		return err
	})
	if err != nil {
		return Expert{}, false, err
	}
	msg := "拜访记录已删除"
	if !orphan {
		msg = fmt.Sprintf("拜访记录已删除，%s 回滚至 %s", expert.Name, expert.Level.Code())
	}
	s.emit(ctx, notify.KindVisitDeleted, msg, 1)
	return expert, true, nil
}

// ClearIntelField blanks one intelligence note of a visit. The level is never
// touched.
func (s *Service) ClearIntelField(ctx context.Context, visitID string, field IntelField) (Visit, error) {
	if _, err := domain.ParseIntelField(string(field)); err != nil {
		return Visit{}, invalidf("%v", err)
	}
	var updated Visit
	_, err := s.run(ctx, "clear_intel_field", func(tx Transaction) error {
		if _, ok := tx.FindVisit(visitID); !ok {
			return ErrNotFound{Entity: EntityVisit, ID: visitID}
		}
		var err error
		updated, err = tx.UpdateVisit(visitID, func(v *Visit) error {
			v.ClearIntel(field)
			return nil
		})
		return err
	})
	if err != nil {
		return Visit{}, err
	}
	s.emit(ctx, notify.KindIntelCleared, fmt.Sprintf("已清除%s", field.Label()), 1)
	return updated, nil
}

// BatchUpdateLevel records one synthetic visit at level for each listed expert
// and sets their level. Unknown ids abort the whole batch.
func (s *Service) BatchUpdateLevel(ctx context.Context, expertIDs []string, level Level, note string) (BatchResult, error) {
	if !level.Valid() {
		return BatchResult{}, invalidf("level %d out of range", level)
	}
	ids := dedupe(expertIDs)
	if len(ids) == 0 {
		return BatchResult{}, nil
	}
	content := strings.TrimSpace(note)
	if content == "" {
		content = fmt.Sprintf(DefaultBatchNote, level)
	}
	date := s.today()

	var out BatchResult
	_, err := s.run(ctx, "batch_update_level", func(tx Transaction) error {
		out = BatchResult{}
		stamp := tx.Now()
		for _, id := range ids {
			if _, ok := tx.FindExpert(id); !ok {
				return ErrNotFound{Entity: EntityExpert, ID: id}
			}
			visit, err := tx.CreateVisit(Visit{
				ExpertID:     id,
				Date:         date,
				Content:      content,
				Level:        level,
				Products:     []string{},
				DiseaseAreas: []string{},
				Timestamp:    stamp,
			})
			if err != nil {
				return err
			}
			expert, err := syncLevel(tx, id)
			if err != nil {
				return err
			}
			out.Visits = append(out.Visits, visit)
			out.Experts = append(out.Experts, expert)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	s.emit(ctx, notify.KindLevelsUpdated, fmt.Sprintf("已将 %d 位专家更新至 %s", len(out.Experts), level.Code()), len(out.Experts))
	return out, nil
}

// BatchDeleteExperts removes the listed experts and all of their visits after
// confirmation. Unknown ids are skipped. It returns the number removed.
func (s *Service) BatchDeleteExperts(ctx context.Context, expertIDs []string, confirm ConfirmFunc) (int, error) {
	ids := dedupe(expertIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	if !confirm.ask(fmt.Sprintf(PromptDeleteExperts, len(ids))) {
		return 0, nil
	}
	var removed int
	_, err := s.run(ctx, "batch_delete_experts", func(tx Transaction) error {
		removed = 0
		for _, id := range ids {
			if _, ok := tx.FindExpert(id); !ok {
				continue
			}
			if err := tx.DeleteExpert(id); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.emit(ctx, notify.KindExpertsDeleted, fmt.Sprintf("已删除 %d 位专家及其拜访记录", removed), removed)
	}
	return removed, nil
}

// DeleteExpert removes a single expert and their visits after confirmation.
func (s *Service) DeleteExpert(ctx context.Context, expertID string, confirm ConfirmFunc) (bool, error) {
	if _, ok := s.store.GetExpert(expertID); !ok {
		return false, ErrNotFound{Entity: EntityExpert, ID: expertID}
	}
	n, err := s.BatchDeleteExperts(ctx, []string{expertID}, confirm)
	return n == 1, err
}

// Snapshot returns a consistent read-only copy of both collections.
func (s *Service) Snapshot(ctx context.Context) (derive.Snapshot, error) {
	var snap derive.Snapshot
	err := s.store.View(ctx, func(view TransactionView) error {
		snap = derive.Snapshot{
			Experts: view.ListExperts(),
			Visits:  view.ListVisits(),
			Version: view.Version(),
		}
		return nil
	})
	return snap, err
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
