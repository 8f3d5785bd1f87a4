package engine

import (
	"slices"
	"time"

	"khorcha/internal/core"
)

// MonthGroup holds the records of one calendar month other than the current one.
type MonthGroup struct {
	Key     string    // YYYY-MM
	Start   core.Date // first day of the month
	Records []core.Expense
	Total   core.Money
}

// Partitioned is the output of Partition.
type Partitioned struct {
	Current []core.Expense
	Past    []MonthGroup // most recent month first
}

// Partition splits records into those dated in the calendar month of now and
// groups of every other month. Record order is preserved inside each list and
// no group is ever empty.
func Partition(records []core.Expense, now time.Time) Partitioned {
	out := Partitioned{Current: []core.Expense{}, Past: []MonthGroup{}}
	index := map[string]int{}
	for _, e := range records {
		if e.Date.SameMonth(now) {
			out.Current = append(out.Current, e)
			continue
		}
		key := e.Date.MonthKey()
		i, ok := index[key]
		if !ok {
			i = len(out.Past)
			index[key] = i
			out.Past = append(out.Past, MonthGroup{Key: key, Start: e.Date.MonthStart()})
		}
		out.Past[i].Records = append(out.Past[i].Records, e)
		out.Past[i].Total = out.Past[i].Total.Add(e.Amount)
	}
	slices.SortFunc(out.Past, func(a, b MonthGroup) int {
		return b.Start.Compare(a.Start.Time)
	})
	return out
}

// CurrentMonth returns the records dated in the calendar month of now, in
// input order.
func CurrentMonth(records []core.Expense, now time.Time) []core.Expense {
	out := make([]core.Expense, 0, len(records))
	for _, e := range records {
		if e.Date.SameMonth(now) {
			out = append(out, e)
		}
	}
	return out
}
