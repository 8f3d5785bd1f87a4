package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khorcha/internal/core"
	"khorcha/internal/engine"
)

var fixedNow = time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fakeSource struct {
	mu       sync.Mutex
	fn       func(core.Snapshot)
	initial  core.Snapshot
	err      error
	unsubbed bool
}

func (f *fakeSource) Subscribe(_ context.Context, userID string, fn func(core.Snapshot)) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	fn(f.initial)
	return func() {
		f.mu.Lock()
		f.unsubbed = true
		f.fn = nil
		f.mu.Unlock()
	}, nil
}

func (f *fakeSource) push(s core.Snapshot) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

type recorder struct {
	mu  sync.Mutex
	got []engine.Dashboard
}

func (r *recorder) sink(d engine.Dashboard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) lastOne() engine.Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func records(n int, d core.Date) []core.Expense {
	out := make([]core.Expense, n)
	for i := range out {
		out[i] = core.Expense{
			ID:            fmt.Sprintf("e%02d", i),
			UserID:        "u1",
			Name:          fmt.Sprintf("Expense %d", i),
			Amount:        core.Money{Cents: int64(100 + i)},
			Category:      core.Categories[i%len(core.Categories)],
			PaymentMethod: core.PaymentMethods[i%2],
			Date:          d,
		}
	}
	return out
}

func TestSessionRecomputesOnSnapshots(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{initial: core.Snapshot{UserID: "u1", Seq: 1, Records: records(3, core.NewDate(2024, 1, 10))}}
	s := NewSession(engine.Params{}, rec.sink, WithClock(clock))

	require.NoError(t, s.Attach(context.Background(), src, "u1"))
	require.Equal(t, 1, rec.count())
	assert.Equal(t, 3, rec.lastOne().FilteredCount)

	src.push(core.Snapshot{UserID: "u1", Seq: 2, Records: records(7, core.NewDate(2024, 1, 10))})
	require.Equal(t, 2, rec.count())
	assert.Equal(t, 7, rec.lastOne().RecordCount)

	d, ok := s.Dashboard()
	require.True(t, ok)
	assert.Equal(t, rec.lastOne(), d)
}

func TestSessionDropsStaleSnapshots(t *testing.T) {
	rec := &recorder{}
	s := NewSession(engine.Params{}, rec.sink, WithClock(clock))

	s.OnSnapshot(core.Snapshot{Seq: 5, Records: records(5, core.NewDate(2024, 1, 1))})
	s.OnSnapshot(core.Snapshot{Seq: 4, Records: records(1, core.NewDate(2024, 1, 1))})
	s.OnSnapshot(core.Snapshot{Seq: 5, Records: records(2, core.NewDate(2024, 1, 1))})

	require.Equal(t, 1, rec.count())
	assert.Equal(t, 5, rec.lastOne().RecordCount)
}

func TestSessionSnapshotIsCopied(t *testing.T) {
	rec := &recorder{}
	s := NewSession(engine.Params{}, rec.sink, WithClock(clock))
	recs := records(2, core.NewDate(2024, 1, 1))
	s.OnSnapshot(core.Snapshot{Seq: 1, Records: recs})

	recs[0].Name = "mutated later"
	s.SetParams(engine.Params{Page: 1})
	assert.Equal(t, "Expense 0", rec.lastOne().Current.Items[0].Name)
}

func TestSessionParamsAndPaging(t *testing.T) {
	rec := &recorder{}
	s := NewSession(engine.Params{Page: 2}, rec.sink, WithClock(clock))

	all := records(12, core.NewDate(2024, 1, 5))
	s.OnSnapshot(core.Snapshot{Seq: 1, Records: all})
	// the page asked for before any data arrived is honoured
	assert.Equal(t, 2, rec.lastOne().Current.CurrentPage)

	s.GoToPage("", 3)
	assert.Equal(t, 3, rec.lastOne().Current.CurrentPage)
	assert.Equal(t, 2, len(rec.lastOne().Current.Items))

	// same data, page kept
	s.OnSnapshot(core.Snapshot{Seq: 2, Records: all})
	assert.Equal(t, 3, rec.lastOne().Current.CurrentPage)

	// ten records deleted: back to page 1, never an empty page
	s.OnSnapshot(core.Snapshot{Seq: 3, Records: all[10:]})
	assert.Equal(t, 1, rec.lastOne().Current.CurrentPage)
	assert.Len(t, rec.lastOne().Current.Items, 2)

	// new filter resets pages
	s.OnSnapshot(core.Snapshot{Seq: 4, Records: all})
	s.GoToPage("", 2)
	s.SetParams(engine.Params{Category: core.Food})
	assert.Equal(t, 1, rec.lastOne().Current.CurrentPage)
	assert.True(t, rec.lastOne().Filtering)

	s.ClearFilters()
	assert.False(t, rec.lastOne().Filtering)
	assert.Equal(t, 12, rec.lastOne().FilteredCount)
}

func TestSessionMonthPages(t *testing.T) {
	rec := &recorder{}
	s := NewSession(engine.Params{MonthPages: map[string]int{"2023-12": 2}}, rec.sink, WithClock(clock))
	s.OnSnapshot(core.Snapshot{Seq: 1, Records: records(8, core.NewDate(2023, 12, 9))})

	d := rec.lastOne()
	require.Len(t, d.Months, 1)
	assert.Equal(t, 2, d.Months[0].CurrentPage)
	assert.Len(t, d.Months[0].Items, 3)
	assert.Equal(t, map[string]int{"2023-12": 2}, s.Params().MonthPages)

	s.GoToPage("2023-12", 1)
	assert.Equal(t, 1, rec.lastOne().Months[0].CurrentPage)
}

func TestSessionCloseStopsRecomputation(t *testing.T) {
	rec := &recorder{}
	src := &fakeSource{initial: core.Snapshot{Seq: 1, Records: records(1, core.NewDate(2024, 1, 1))}}
	s := NewSession(engine.Params{}, rec.sink, WithClock(clock))
	require.NoError(t, s.Attach(context.Background(), src, "u1"))

	s.Close()
	s.Close()
	assert.True(t, src.unsubbed)

	s.OnSnapshot(core.Snapshot{Seq: 9, Records: records(4, core.NewDate(2024, 1, 1))})
	s.SetParams(engine.Params{Search: "x"})
	s.GoToPage("", 2)
	assert.Equal(t, 1, rec.count())
}

func TestSessionAttachError(t *testing.T) {
	boom := errors.New("boom")
	s := NewSession(engine.Params{}, func(engine.Dashboard) {}, WithClock(clock))
	err := s.Attach(context.Background(), &fakeSource{err: boom}, "u1")
	assert.ErrorIs(t, err, boom)
}

func TestMailboxKeepsLatest(t *testing.T) {
	m := NewMailbox()
	m.Put(engine.Dashboard{RecordCount: 1})
	m.Put(engine.Dashboard{RecordCount: 2})
	m.Put(engine.Dashboard{RecordCount: 3})

	select {
	case d := <-m.C():
		assert.Equal(t, 3, d.RecordCount)
	default:
		t.Fatal("expected a dashboard")
	}
	select {
	case <-m.C():
		t.Fatal("mailbox should be empty")
	default:
	}
}
