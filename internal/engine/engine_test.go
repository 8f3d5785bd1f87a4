package engine

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khorcha/internal/core"
)

// now is mid January 2024, 10:30 local time in India.
var now = time.Date(2024, 1, 20, 10, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

func exp(id, name string, cents int64, c core.Category, p core.PaymentMethod, d core.Date) core.Expense {
	return core.Expense{
		ID:            id,
		UserID:        "u1",
		Name:          name,
		Amount:        core.Money{Cents: cents},
		Category:      c,
		PaymentMethod: p,
		Date:          d,
	}
}

func sample() []core.Expense {
	return []core.Expense{
		exp("a", "Groceries", 125050, core.Food, core.UPI, core.NewDate(2024, 1, 20)),
		exp("b", "Metro card", 50000, core.Transport, core.Cash, core.NewDate(2024, 1, 18)),
		exp("c", "Electricity", 230000, core.Bills, core.UPI, core.NewDate(2023, 12, 30)),
		exp("d", "Shirt", 99900, core.Shopping, core.Cash, core.NewDate(2024, 1, 2)),
		exp("e", "Tea", 2000, core.Food, core.Cash, core.NewDate(2023, 11, 4)),
		exp("f", "Auto fare", 12000, core.Transport, core.UPI, core.NewDate(2023, 12, 1)),
		exp("g", "Birthday gift", 150000, core.Other, core.Cash, core.NewDate(2022, 12, 25)),
	}
}

func ids(records []core.Expense) string {
	out := make([]string, len(records))
	for i, e := range records {
		out[i] = e.ID
	}
	return strings.Join(out, "")
}

func TestFilterMatchesBothPredicates(t *testing.T) {
	records := sample()
	searches := []string{"", "tea", "TEA", "e", "cash", "UPI", "food", "1250.5", "20", "500", "zzz", " "}
	categories := append([]core.Category{CategoryAll}, core.Categories...)

	for _, s := range searches {
		for _, c := range categories {
			got := Filter(records, s, c)

			var want []core.Expense
			for _, e := range records {
				catOK := c == CategoryAll || e.Category == c
				needle := strings.ToLower(s)
				textOK := s == "" ||
					strings.Contains(strings.ToLower(e.Name), needle) ||
					strings.Contains(string(e.Category), needle) ||
					strings.Contains(string(e.PaymentMethod), needle) ||
					strings.Contains(e.Amount.String(), needle)
				if catOK && textOK {
					want = append(want, e)
				}
			}
			assert.Equal(t, ids(want), ids(got), "search %q category %q", s, c)
		}
	}
}

func TestFilterSearchFields(t *testing.T) {
	records := sample()
	assert.Equal(t, "e", ids(Filter(records, "TeA", CategoryAll)))
	assert.Equal(t, "bf", ids(Filter(records, "transport", CategoryAll)))
	assert.Equal(t, "acf", ids(Filter(records, "upi", CategoryAll)))
	// 125050 cents renders as 1250.5
	assert.Equal(t, "a", ids(Filter(records, "1250.5", CategoryAll)))
	assert.Equal(t, "f", ids(Filter(records, "fare", core.Transport)))
	assert.Empty(t, Filter(records, "fare", core.Food))
	assert.Empty(t, Filter(nil, "", CategoryAll))
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	records := sample()
	before := ids(records)
	out := Filter(records, "", CategoryAll)
	require.Len(t, out, len(records))
	out[0].Name = "changed"
	assert.Equal(t, "Groceries", records[0].Name)
	assert.Equal(t, before, ids(records))
}

func TestPartitionCoversInputExactly(t *testing.T) {
	records := sample()
	p := Partition(records, now)

	assert.Equal(t, "abd", ids(p.Current))
	require.Len(t, p.Past, 3)
	assert.Equal(t, "2023-12", p.Past[0].Key)
	assert.Equal(t, "2023-11", p.Past[1].Key)
	assert.Equal(t, "2022-12", p.Past[2].Key)
	assert.Equal(t, "cf", ids(p.Past[0].Records))
	assert.True(t, p.Past[0].Start.Equal(core.NewDate(2023, 12, 1).Time))
	assert.Equal(t, int64(242000), p.Past[0].Total.Cents)

	seen := map[string]int{}
	for _, e := range p.Current {
		seen[e.ID]++
	}
	for _, g := range p.Past {
		require.NotEmpty(t, g.Records)
		for _, e := range g.Records {
			seen[e.ID]++
			assert.Equal(t, g.Key, e.Date.MonthKey())
		}
	}
	require.Len(t, seen, len(records))
	for id, n := range seen {
		assert.Equal(t, 1, n, "record %s", id)
	}
}

func TestPartitionEmpty(t *testing.T) {
	p := Partition(nil, now)
	assert.Empty(t, p.Current)
	assert.Empty(t, p.Past)
}

func TestPartitionUsesCalendarOfNow(t *testing.T) {
	// 31 Jan 20:00 UTC is already 1 Feb in India.
	utc := time.Date(2024, 1, 31, 20, 0, 0, 0, time.UTC)
	records := []core.Expense{exp("x", "Chai", 1500, core.Food, core.Cash, core.NewDate(2024, 2, 1))}

	assert.Len(t, Partition(records, utc.In(now.Location())).Current, 1)
	assert.Empty(t, Partition(records, utc).Current)
}

func TestRollupAndBreakdownScenario(t *testing.T) {
	today := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	records := []core.Expense{
		exp("1", "Lunch", 10000, core.Food, core.Cash, core.NewDate(2024, 1, 5)),
		exp("2", "Snacks", 5000, core.Food, core.UPI, core.NewDate(2024, 1, 5)),
		exp("3", "Bus", 2500, core.Transport, core.Cash, core.NewDate(2024, 1, 6)),
	}

	totals := Rollup(records, today)
	assert.Equal(t, int64(17500), totals.MonthlyTotal.Cents)
	assert.Equal(t, int64(12500), totals.MonthlyCash.Cents)
	assert.Equal(t, int64(5000), totals.MonthlyUPI.Cents)
	assert.Equal(t, int64(15000), totals.DailyTotal.Cents)

	b := Breakdown(Partition(records, today).Current)
	assert.Equal(t, int64(17500), b.Total.Cents)
	assert.Equal(t, []BreakdownItem{
		{Category: core.Food, Amount: core.Money{Cents: 15000}, Percent: 86, Color: "#fb7185"},
		{Category: core.Transport, Amount: core.Money{Cents: 2500}, Percent: 14, Color: "#38bdf8"},
	}, b.Items)
}

func TestRollupIgnoresOtherMonths(t *testing.T) {
	totals := Rollup(sample(), now)
	assert.Equal(t, int64(125050+50000+99900), totals.MonthlyTotal.Cents)
	assert.Equal(t, int64(125050), totals.DailyTotal.Cents)
	assert.Equal(t, totals.MonthlyTotal.Cents, totals.MonthlyCash.Cents+totals.MonthlyUPI.Cents)
}

func TestBreakdownTiesKeepCategoryOrder(t *testing.T) {
	records := []core.Expense{
		exp("1", "Misc", 1000, core.Other, core.Cash, core.NewDate(2024, 1, 1)),
		exp("2", "Power", 1000, core.Bills, core.Cash, core.NewDate(2024, 1, 1)),
		exp("3", "Cab", 1000, core.Transport, core.Cash, core.NewDate(2024, 1, 1)),
	}
	b := Breakdown(records)
	require.Len(t, b.Items, 3)
	assert.Equal(t, core.Transport, b.Items[0].Category)
	assert.Equal(t, core.Bills, b.Items[1].Category)
	assert.Equal(t, core.Other, b.Items[2].Category)
	// 33.33 each, rounded independently
	for _, it := range b.Items {
		assert.Equal(t, 33, it.Percent)
	}
}

func TestBreakdownPercentRoundsHalfUp(t *testing.T) {
	records := []core.Expense{
		exp("1", "Rice", 100, core.Food, core.Cash, core.NewDate(2024, 1, 1)),
		exp("2", "Bus", 100, core.Transport, core.Cash, core.NewDate(2024, 1, 1)),
		exp("3", "Toy", 100, core.Shopping, core.Cash, core.NewDate(2024, 1, 1)),
		exp("4", "Rent", 100, core.Bills, core.Cash, core.NewDate(2024, 1, 1)),
		exp("5", "Misc", 400, core.Other, core.Cash, core.NewDate(2024, 1, 1)),
	}
	// 12.5% each for the first four
	b := Breakdown(records)
	require.Len(t, b.Items, 5)
	assert.Equal(t, core.Other, b.Items[0].Category)
	assert.Equal(t, 50, b.Items[0].Percent)
	for _, it := range b.Items[1:] {
		assert.Equal(t, 13, it.Percent)
	}
}

func TestBreakdownPercentagesNearHundred(t *testing.T) {
	for n := 1; n <= 40; n++ {
		var records []core.Expense
		for i := 0; i < n; i++ {
			c := core.Categories[(i*7)%len(core.Categories)]
			records = append(records, exp(fmt.Sprint(i), "Item", int64(101+i*37), c, core.Cash, core.NewDate(2024, 1, 1)))
		}
		b := Breakdown(records)
		sum := 0
		for _, it := range b.Items {
			assert.Positive(t, it.Amount.Cents)
			assert.GreaterOrEqual(t, it.Percent, 0)
			sum += it.Percent
		}
		assert.LessOrEqual(t, abs(sum-100), len(b.Items), "n=%d", n)
	}
}

func TestBreakdownEmpty(t *testing.T) {
	b := Breakdown(nil)
	assert.Zero(t, b.Total.Cents)
	assert.Empty(t, b.Items)
}

func TestPaymentSplit(t *testing.T) {
	split := PaymentSplit(Totals{
		MonthlyTotal: core.Money{Cents: 300},
		MonthlyCash:  core.Money{Cents: 100},
		MonthlyUPI:   core.Money{Cents: 200},
	})
	require.Len(t, split, 2)
	assert.Equal(t, PaymentShare{Method: core.Cash, Amount: core.Money{Cents: 100}, Percent: 33, Color: "#fbbf24"}, split[0])
	assert.Equal(t, PaymentShare{Method: core.UPI, Amount: core.Money{Cents: 200}, Percent: 67, Color: "#38bdf8"}, split[1])

	for _, s := range PaymentSplit(Totals{}) {
		assert.Zero(t, s.Percent)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
