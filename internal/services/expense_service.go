package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"khorcha/internal/cache"
	"khorcha/internal/core"
	applog "khorcha/internal/log"
	"khorcha/internal/storage"
)

// ErrCommandFailed marks a create, update or delete that the store rejected.
// The underlying store error stays wrapped next to it.
var ErrCommandFailed = errors.New("expense command failed")

// ChangePublisher announces committed changes to other processes.
type ChangePublisher interface {
	PublishExpenseChanged(ctx context.Context, userID, expenseID, op string) error
}

// ExpenseService is the only way records change. Every successful command
// reloads the user's records from the repository and pushes the fresh
// snapshot to all subscribers; nothing is applied optimistically.
type ExpenseService struct {
	repo      storage.Repository
	hub       *Hub
	snapshots cache.Cache[core.Snapshot]
	publisher ChangePublisher
	now       func() time.Time
	logger    *applog.Logger
	events    *applog.StructuredLogger

	// guards the snapshot cache and serialises deliveries so subscribers
	// see sequence numbers in order
	mu sync.Mutex
}

type Option func(*ExpenseService)

func WithPublisher(p ChangePublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithSnapshotCache(c cache.Cache[core.Snapshot]) Option {
	return func(s *ExpenseService) { s.snapshots = c }
}

func WithHub(h *Hub) Option {
	return func(s *ExpenseService) { s.hub = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *ExpenseService) { s.now = now }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *ExpenseService) { s.logger = l }
}

func NewExpenseService(repo storage.Repository, opts ...Option) *ExpenseService {
	s := &ExpenseService{
		repo:   repo,
		hub:    NewHub(),
		now:    time.Now,
		logger: applog.Default(applog.ComponentExpense),
	}
	for _, o := range opts {
		o(s)
	}
	if s.snapshots == nil {
		s.snapshots = cache.NewLRUCache[core.Snapshot](256, 5*time.Minute)
	}
	s.events = applog.NewStructuredLogger(s.logger)
	return s
}

// Subscribe delivers the current snapshot of userID to fn before returning,
// then every later one until the returned function is called.
func (s *ExpenseService) Subscribe(ctx context.Context, userID string, fn func(core.Snapshot)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.hub.Add(userID, fn)
	records, err := s.load(ctx, userID)
	if err != nil {
		s.hub.Remove(userID, id)
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	fn(s.hub.Stamp(userID, records))

	var once sync.Once
	return func() { once.Do(func() { s.hub.Remove(userID, id) }) }, nil
}

// Snapshot returns the current records of userID.
func (s *ExpenseService) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx, userID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return core.Snapshot{UserID: userID, Seq: s.hub.Seq(userID), Records: records}, nil
}

// Create validates and stores a new expense for userID. The id and
// timestamps are assigned by the store.
func (s *ExpenseService) Create(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	now := s.now()
	e.ID = ""
	e.UserID = userID
	e.Name = strings.TrimSpace(e.Name)
	e.CreatedAt, e.UpdatedAt = now.UTC(), now.UTC()
	if err := e.ValidateAt(now); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.repo.InsertExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: create: %w", ErrCommandFailed, err)
	}
	s.changed(ctx, applog.OpCreate, saved)
	return saved, nil
}

// Update applies patch to an existing expense. The patched expense must
// validate as a whole.
func (s *ExpenseService) Update(ctx context.Context, userID, id string, patch core.Patch) (core.Expense, error) {
	existing, err := s.repo.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: update %s: %w", ErrCommandFailed, id, err)
	}
	if patch.IsEmpty() {
		return existing, nil
	}

	now := s.now()
	updated := patch.Apply(existing)
	updated.UpdatedAt = now.UTC()
	if err := updated.ValidateAt(now); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: update %s: %w", ErrCommandFailed, id, err)
	}
	s.changed(ctx, applog.OpUpdate, saved)
	return saved, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrCommandFailed, id, err)
	}
	s.changed(ctx, applog.OpDelete, core.Expense{ID: id, UserID: userID})
	return nil
}

// Close closes the repository and, when it can be closed, the publisher.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}
	return nil
}

// changed runs after a committed command: it refreshes every subscriber of
// the user and announces the change. Failures here are logged, the command
// itself already succeeded.
func (s *ExpenseService) changed(ctx context.Context, op string, e core.Expense) {
	s.events.LogExpenseChanged(ctx, op, e.UserID, e.ID, e.Name, e.Amount.Cents, e.Category.String(), e.PaymentMethod.String())

	s.broadcast(ctx, e.UserID)

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No change publisher configured, skipping event", applog.FieldExpenseID, e.ID)
		return
	}
	if err := s.publisher.PublishExpenseChanged(ctx, e.UserID, e.ID, op); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense change",
			applog.FieldUserID, e.UserID, applog.FieldExpenseID, e.ID, applog.FieldOperation, op, applog.FieldError, err)
	}
}

// broadcast reloads userID from the repository and publishes the result.
// The cache entry is dropped under s.mu, so a broadcast that starts after a
// commit always reads that commit.
func (s *ExpenseService) broadcast(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots.Delete(userID)
	records, err := s.load(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to reload snapshot after change",
			applog.FieldUserID, userID, applog.FieldError, err)
		return
	}
	snap := s.hub.Publish(userID, records)
	s.logger.DebugContext(ctx, "Snapshot published",
		applog.FieldUserID, userID, applog.FieldSeq, snap.Seq, applog.FieldRecords, len(records))
}

// load returns the records of userID, from the cache when possible. The
// returned slice is never shared with the cache. Callers hold s.mu.
func (s *ExpenseService) load(ctx context.Context, userID string) ([]core.Expense, error) {
	if snap, ok := s.snapshots.Get(userID); ok {
		return append([]core.Expense(nil), snap.Records...), nil
	}
	records, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.snapshots.Set(userID, core.Snapshot{UserID: userID, Records: append([]core.Expense(nil), records...)})
	return records, nil
}
