package storage

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"khorcha/internal/core"
)

// ErrNotFound is returned when a user has no expense with the given id.
var ErrNotFound = errors.New("expense not found")

// Repository is the durable record set of every user. Implementations are
// safe for concurrent use.
type Repository interface {
	// ListExpenses returns all expenses of userID, newest first: by date
	// descending, then by creation time descending.
	ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
	GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
	// InsertExpense stores a new expense. An empty ID is replaced by a fresh
	// UUID and zero timestamps by the current time.
	InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	// UpdateExpense overwrites the mutable fields of an existing expense.
	UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, userID, id string) error
	Close() error
}

// SortNewestFirst orders expenses the way ListExpenses returns them.
func SortNewestFirst(items []core.Expense) {
	slices.SortStableFunc(items, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// Stamp fills in what the store owns on insert: the id and zero timestamps.
func Stamp(e core.Expense, now time.Time) core.Expense {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now = now.UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	return e
}
