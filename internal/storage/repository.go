package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"khorcha/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := row.toExpense()
		if err != nil {
			return nil, fmt.Errorf("decode expense %s: %w", row.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return row.toExpense()
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e = Stamp(e, r.now())
	if err := r.queries.CreateExpense(ctx, fromExpense(e)); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"amount_cents", e.Amount.Cents,
		"date", e.Date.String())

	return e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = r.now().UTC()
	}
	n, err := r.queries.UpdateExpense(ctx, fromExpense(e))
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if n == 0 {
		return core.Expense{}, ErrNotFound
	}
	// created_at is not rewritten; read it back
	return r.GetExpense(ctx, e.UserID, e.ID)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	n, err := r.queries.DeleteExpense(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id, "user_id", userID)
	return nil
}

func fromExpense(e core.Expense) ExpenseRow {
	return ExpenseRow{
		ID:            e.ID,
		UserID:        e.UserID,
		Name:          e.Name,
		AmountCents:   e.Amount.Cents,
		Category:      e.Category.String(),
		PaymentMethod: e.PaymentMethod.String(),
		ExpenseDate:   e.Date.String(),
		CreatedAt:     e.CreatedAt.UnixNano(),
		UpdatedAt:     e.UpdatedAt.UnixNano(),
	}
}

func (row ExpenseRow) toExpense() (core.Expense, error) {
	d, err := core.ParseDate(row.ExpenseDate)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ID:            row.ID,
		UserID:        row.UserID,
		Name:          row.Name,
		Amount:        core.Money{Cents: row.AmountCents},
		Category:      core.Category(row.Category),
		PaymentMethod: core.PaymentMethod(row.PaymentMethod),
		Date:          d,
		CreatedAt:     time.Unix(0, row.CreatedAt).UTC(),
		UpdatedAt:     time.Unix(0, row.UpdatedAt).UTC(),
	}, nil
}
