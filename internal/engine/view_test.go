package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khorcha/internal/core"
)

func TestParamsNormalize(t *testing.T) {
	p := Params{Category: "snacks", Page: -1, MonthPages: map[string]int{"2023-12": 0, "2023-11": 3}}.Normalize()
	assert.Equal(t, CategoryAll, p.Category)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, map[string]int{"2023-11": 3}, p.MonthPages)

	assert.Equal(t, core.Bills, Params{Category: core.Bills}.Normalize().Category)
}

func TestParamsActiveAndCleared(t *testing.T) {
	assert.False(t, Params{}.Active())
	assert.False(t, Params{Category: CategoryAll}.Active())
	assert.True(t, Params{Search: "tea"}.Active())
	assert.True(t, Params{Category: core.Food}.Active())

	p := Params{Search: "tea", Category: core.Food, Page: 4}
	cleared := p.Cleared()
	assert.False(t, cleared.Active())
	assert.Equal(t, 1, cleared.Page)
	assert.True(t, cleared.Equal(Params{}))
	assert.True(t, p.SameFilters(Params{Search: "tea", Category: core.Food}))
	assert.False(t, p.SameFilters(cleared))
}

func TestComputeDashboard(t *testing.T) {
	d := Compute(sample(), Params{}, now)

	assert.Equal(t, 7, d.RecordCount)
	assert.Equal(t, 7, d.FilteredCount)
	assert.False(t, d.Filtering)
	assert.True(t, d.CanExport)
	assert.Equal(t, "khorcha-khata-2024-01.csv", d.ExportName)
	assert.Equal(t, 3, d.Current.Count)
	assert.Equal(t, "abd", ids(d.Current.Items))
	assert.Equal(t, int64(274950), d.Current.Total.Cents)
	require.Len(t, d.Months, 3)
	assert.Equal(t, "2023-12", d.Months[0].Key)
	assert.Equal(t, int64(242000), d.Months[0].Total.Cents)
	assert.Equal(t, 2, d.Months[0].Count)
	require.Len(t, d.Payments, 2)
}

func TestComputeFiltersDoNotMoveTotals(t *testing.T) {
	all := Compute(sample(), Params{}, now)
	food := Compute(sample(), Params{Category: core.Food, Search: "groc"}, now)

	assert.Equal(t, all.Totals, food.Totals)
	assert.Equal(t, all.Payments, food.Payments)
	assert.True(t, food.Filtering)
	assert.Equal(t, 1, food.FilteredCount)
	assert.Equal(t, int64(125050), food.Breakdown.Total.Cents)
	require.Len(t, food.Breakdown.Items, 1)
	assert.Equal(t, 100, food.Breakdown.Items[0].Percent)
	assert.Empty(t, food.Months)

	none := Compute(sample(), Params{Search: "nothing matches"}, now)
	assert.True(t, none.Empty())
	assert.False(t, none.CanExport)
	assert.Empty(t, none.Breakdown.Items)
	assert.Equal(t, 0, none.Current.TotalPages)
	assert.Equal(t, all.Totals, none.Totals)
}

func TestComputeIsIdempotent(t *testing.T) {
	records := append(sample(), numbered(9)...)
	params := Params{Search: "e", Page: 2, MonthPages: map[string]int{"2023-12": 2}}
	snapshot := ids(records)

	a := Compute(records, params, now)
	b := Compute(records, params, now)
	assert.Equal(t, a, b)
	assert.Equal(t, snapshot, ids(records))
}

func TestComputeClampsPages(t *testing.T) {
	records := numbered(12)
	for i := range records {
		records[i].Date = core.NewDate(2024, 1, 3)
	}
	d := Compute(records, Params{Page: 99}, now)
	assert.Equal(t, 3, d.Current.CurrentPage)
	assert.Equal(t, "r11r12", ids(d.Current.Items))
}

func TestCursors(t *testing.T) {
	records := numbered(12)
	for i := range records {
		if i < 7 {
			records[i].Date = core.NewDate(2024, 1, 3)
		} else {
			records[i].Date = core.NewDate(2023, 12, 3)
		}
	}

	c := NewCursors()
	p := c.Apply(records, Params{}, now)
	assert.Equal(t, 1, p.Page)

	require.True(t, c.Go("", 2))
	require.True(t, c.Go("2023-12", 9))
	assert.False(t, c.Go("2020-01", 1))
	p = c.Pages(p)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, map[string]int{}, p.MonthPages) // five records fit one page

	// unchanged records keep the cursor
	p = c.Apply(records, p, now)
	assert.Equal(t, 2, p.Page)

	// a delete in the current month resets that list only
	p = c.Apply(records[1:], p, now)
	assert.Equal(t, 1, p.Page)

	c.Go("", 2)
	c.Reset()
	assert.Equal(t, 1, c.Pages(Params{}).Page)

	d := Compute(records[1:], p, now)
	assert.Equal(t, 1, d.Current.CurrentPage)
}
