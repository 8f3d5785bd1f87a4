package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"khorcha/internal/amqp"
	"khorcha/internal/core"
	"khorcha/internal/engine"
	"khorcha/internal/sheets"
	"khorcha/internal/storage"
)

// SnapshotSource loads the full record set of one user.
type SnapshotSource interface {
	Snapshot(ctx context.Context, userID string) (core.Snapshot, error)
}

// RepositorySource reads snapshots straight from the store. Changes are
// made by another process, so nothing here is cached.
type RepositorySource struct {
	Repo storage.Repository
}

func (s RepositorySource) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	records, err := s.Repo.ListExpenses(ctx, userID)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("list expenses: %w", err)
	}
	return core.Snapshot{UserID: userID, Records: records}, nil
}

// ChangeConsumer delivers expense change events until ctx is done.
type ChangeConsumer interface {
	ConsumeExpenseChanged(ctx context.Context, handler func(context.Context, *amqp.ExpenseChangedMessage) error) error
}

// MirrorWorker keeps one sheet tab per user and month in step with the store.
// Every change event rewrites the user's current-month tab.
type MirrorWorker struct {
	source SnapshotSource
	writer sheets.MonthWriter
	prefix string
	now    func() time.Time
}

func NewMirrorWorker(source SnapshotSource, writer sheets.MonthWriter, prefix string) *MirrorWorker {
	return &MirrorWorker{
		source: source,
		writer: writer,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the clock used to decide the current month.
func (w *MirrorWorker) WithClock(now func() time.Time) *MirrorWorker {
	w.now = now
	return w
}

// HandleChange processes a single expense change message from AMQP
func (w *MirrorWorker) HandleChange(ctx context.Context, msg *amqp.ExpenseChangedMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	slog.InfoContext(ctx, "Processing change message",
		"user_id", msg.UserID,
		"expense_id", msg.ExpenseID,
		"op", msg.Op)

	if err := w.Mirror(ctx, msg.UserID); err != nil {
		return fmt.Errorf("mirror user %s: %w", msg.UserID, err)
	}
	return nil
}

// Mirror writes the user's current month, header first. An empty month
// leaves only the header in the tab.
func (w *MirrorWorker) Mirror(ctx context.Context, userID string) error {
	snap, err := w.source.Snapshot(ctx, userID)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	now := w.now()
	month := engine.CurrentMonth(snap.Records, now)
	rows := engine.ExportRows(month)
	tab := sheets.TabName(w.prefix, now.Format("2006-01"), userID)

	if err := w.writer.WriteMonth(ctx, tab, rows); err != nil {
		return fmt.Errorf("write tab %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Successfully mirrored month",
		"user_id", userID,
		"tab", tab,
		"records", len(month))
	return nil
}

// Run consumes change events until ctx is cancelled.
func (w *MirrorWorker) Run(ctx context.Context, consumer ChangeConsumer) error {
	err := consumer.ConsumeExpenseChanged(ctx, w.HandleChange)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
