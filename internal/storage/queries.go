package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ExpenseRow is one row of the expenses table.
type ExpenseRow struct {
	ID            string
	UserID        string
	Name          string
	AmountCents   int64
	Category      string
	PaymentMethod string
	ExpenseDate   string
	CreatedAt     int64
	UpdatedAt     int64
}

const expenseColumns = `id, user_id, name, amount_cents, category, payment_method, expense_date, created_at, updated_at`

func scanExpense(s interface{ Scan(...any) error }) (ExpenseRow, error) {
	var i ExpenseRow
	err := s.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.AmountCents,
		&i.Category,
		&i.PaymentMethod,
		&i.ExpenseDate,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listExpensesByUser = `SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ?
ORDER BY expense_date DESC, created_at DESC`

func (q *Queries) ListExpensesByUser(ctx context.Context, userID string) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseRow
	for rows.Next() {
		i, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getExpense = `SELECT ` + expenseColumns + `
FROM expenses
WHERE user_id = ? AND id = ?`

func (q *Queries) GetExpense(ctx context.Context, userID, id string) (ExpenseRow, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, userID, id))
}

const createExpense = `INSERT INTO expenses (` + expenseColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateExpense(ctx context.Context, arg ExpenseRow) error {
	_, err := q.db.ExecContext(ctx, createExpense,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.AmountCents,
		arg.Category,
		arg.PaymentMethod,
		arg.ExpenseDate,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateExpense = `UPDATE expenses
SET name = ?, amount_cents = ?, category = ?, payment_method = ?, expense_date = ?, updated_at = ?
WHERE user_id = ? AND id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, arg ExpenseRow) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateExpense,
		arg.Name,
		arg.AmountCents,
		arg.Category,
		arg.PaymentMethod,
		arg.ExpenseDate,
		arg.UpdatedAt,
		arg.UserID,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, userID, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpense, userID, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
