// Package feed keeps a dashboard live: it reacts to record snapshots and to
// view parameter changes by recomputing the dashboard and handing it to a
// sink.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"khorcha/internal/core"
	"khorcha/internal/engine"
	applog "khorcha/internal/log"
)

// Source pushes full record snapshots of one user. Subscribe delivers the
// current snapshot before returning and every later one until the returned
// function is called.
type Source interface {
	Subscribe(ctx context.Context, userID string, fn func(core.Snapshot)) (func(), error)
}

// Sink receives every recomputed dashboard. It must not block.
type Sink func(engine.Dashboard)

// Session is one live view of a user's expenses. Events are handled one at
// a time and each one triggers a full synchronous recomputation.
type Session struct {
	mu sync.Mutex

	sink   Sink
	now    func() time.Time
	logger *applog.Logger

	cursors   *engine.Cursors
	params    engine.Params
	requested *engine.Params // pages asked for before the first snapshot

	records []core.Expense
	seq     uint64
	loaded  bool

	last   engine.Dashboard
	closed bool
	unsub  func()
}

type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession returns a session showing params. Nothing is delivered to sink
// until the first snapshot arrives.
func NewSession(params engine.Params, sink Sink, opts ...Option) *Session {
	s := &Session{
		sink:    sink,
		now:     time.Now,
		logger:  applog.Default(applog.ComponentFeed),
		cursors: engine.NewCursors(),
		params:  params.Normalize(),
	}
	for _, o := range opts {
		o(s)
	}
	p := s.params
	s.requested = &p
	return s
}

// Attach subscribes the session to the snapshots of userID.
func (s *Session) Attach(ctx context.Context, src Source, userID string) error {
	unsub, err := src.Subscribe(ctx, userID, s.OnSnapshot)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", userID, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()
	return nil
}

// OnSnapshot installs a new snapshot. Snapshots older than or equal to the
// last applied one are dropped.
func (s *Session) OnSnapshot(snap core.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.loaded && snap.Seq <= s.seq {
		s.logger.Debug("Dropping stale snapshot",
			applog.FieldUserID, snap.UserID, applog.FieldSeq, snap.Seq, "applied_seq", s.seq)
		return
	}
	s.records = append([]core.Expense(nil), snap.Records...)
	s.seq = snap.Seq
	s.loaded = true
	s.recompute()
}

// SetParams replaces the view parameters. A change of search text or
// category sends every list back to its first page; otherwise the pages in
// params are applied.
func (s *Session) SetParams(params engine.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	params = params.Normalize()
	filtersChanged := !params.SameFilters(s.params)
	s.params = params
	if filtersChanged {
		s.cursors.Reset()
		s.requested = nil
	} else {
		s.requested = &params
	}
	if s.loaded {
		s.recompute()
	}
}

// GoToPage moves one list to page. An empty month key selects the
// current-month list.
func (s *Session) GoToPage(monthKey string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.loaded {
		return
	}
	if !s.cursors.Go(monthKey, page) {
		return
	}
	s.recompute()
}

// ClearFilters drops search and category filters.
func (s *Session) ClearFilters() {
	s.SetParams(s.Params().Cleared())
}

// Params returns the parameters of the last recomputation.
func (s *Session) Params() engine.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Dashboard returns the last delivered dashboard and whether one exists.
func (s *Session) Dashboard() (engine.Dashboard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.loaded
}

// Close stops the session. Nothing is recomputed or delivered afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// recompute must be called with s.mu held.
func (s *Session) recompute() {
	now := s.now()
	params := s.cursors.Apply(s.records, s.params, now)
	if s.requested != nil {
		s.cursors.Go("", s.requested.Page)
		for key, page := range s.requested.MonthPages {
			s.cursors.Go(key, page)
		}
		params = s.cursors.Pages(params)
		s.requested = nil
	}
	s.params = params
	s.last = engine.Compute(s.records, params, now)
	s.sink(s.last)
}
