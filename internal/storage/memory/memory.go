// Package memory is an in-process expense repository, used for development
// and tests.
package memory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"khorcha/internal/core"
	"khorcha/internal/storage"
)

type Store struct {
	mu    sync.Mutex
	now   func() time.Time
	users map[string]map[string]core.Expense
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now, users: map[string]map[string]core.Expense{}}
}

// WithClock replaces time.Now for the timestamps the store assigns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) ListExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(s.users[userID]))
	for _, e := range s.users[userID] {
		out = append(out, e)
	}
	storage.SortNewestFirst(out)
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[userID][id]
	if !ok {
		return core.Expense{}, storage.ErrNotFound
	}
	return e, nil
}

func (s *Store) InsertExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e = storage.Stamp(e, s.now())
	byID, ok := s.users[e.UserID]
	if !ok {
		byID = map[string]core.Expense{}
		s.users[e.UserID] = byID
	}
	if _, dup := byID[e.ID]; dup {
		return core.Expense{}, fmt.Errorf("expense %s already exists", e.ID)
	}
	byID[e.ID] = e
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[e.UserID][e.ID]
	if !ok {
		return core.Expense{}, storage.ErrNotFound
	}
	e.CreatedAt = old.CreatedAt
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = s.now().UTC()
	}
	s.users[e.UserID][e.ID] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID][id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users[userID], id)
	return nil
}

func (s *Store) Close() error { return nil }

// Seed loads expenses for userID from a CSV export
// (date,name,category,paymentMethod,amount, header first).
func (s *Store) Seed(ctx context.Context, userID string, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	rows, err := cr.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read seed: %w", err)
	}
	n := 0
	for i, row := range rows {
		if i == 0 && row[0] == "date" {
			continue
		}
		e, err := parseRow(userID, row)
		if err != nil {
			return n, fmt.Errorf("seed row %d: %w", i+1, err)
		}
		if _, err := s.InsertExpense(ctx, e); err != nil {
			return n, fmt.Errorf("seed row %d: %w", i+1, err)
		}
		n++
	}
	return n, nil
}

// SeedFile is Seed reading from a file path.
func (s *Store) SeedFile(ctx context.Context, userID, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return s.Seed(ctx, userID, f)
}

func parseRow(userID string, row []string) (core.Expense, error) {
	d, err := core.ParseDate(row[0])
	if err != nil {
		return core.Expense{}, err
	}
	c, err := core.ParseCategory(row[2])
	if err != nil {
		return core.Expense{}, err
	}
	p, err := core.ParsePaymentMethod(row[3])
	if err != nil {
		return core.Expense{}, err
	}
	amount, err := core.ParseMoney(row[4])
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		UserID:        userID,
		Name:          row[1],
		Amount:        amount,
		Category:      c,
		PaymentMethod: p,
		Date:          d,
	}, nil
}
