package engine

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"khorcha/internal/core"
)

// CategoryColors maps every category to its chart color.
var CategoryColors = map[core.Category]string{
	core.Food:      "#fb7185", // rose-400
	core.Transport: "#38bdf8", // sky-400
	core.Shopping:  "#a78bfa", // violet-400
	core.Bills:     "#34d399", // emerald-400
	core.Other:     "#fbbf24", // amber-400
}

// PaymentColors maps every payment method to its chart color.
var PaymentColors = map[core.PaymentMethod]string{
	core.Cash: "#fbbf24", // amber-400
	core.UPI:  "#38bdf8", // sky-400
}

// Totals are the headline figures of the current month. They ignore the
// search and category filters.
type Totals struct {
	MonthlyTotal core.Money `json:"monthlyTotal"`
	MonthlyCash  core.Money `json:"monthlyCash"`
	MonthlyUPI   core.Money `json:"monthlyUpi"`
	DailyTotal   core.Money `json:"dailyTotal"`
}

type BreakdownItem struct {
	Category core.Category `json:"category"`
	Amount   core.Money    `json:"amount"`
	Percent  int           `json:"percent"`
	Color    string        `json:"color"`
}

type CategoryBreakdown struct {
	Total core.Money      `json:"total"`
	Items []BreakdownItem `json:"items"`
}

type PaymentShare struct {
	Method  core.PaymentMethod `json:"method"`
	Amount  core.Money         `json:"amount"`
	Percent int                `json:"percent"`
	Color   string             `json:"color"`
}

// Rollup sums the records dated in the calendar month of now. Records from
// other months are ignored, so the full unfiltered record set can be passed.
func Rollup(records []core.Expense, now time.Time) Totals {
	var t Totals
	for _, e := range records {
		if !e.Date.SameMonth(now) {
			continue
		}
		t.MonthlyTotal = t.MonthlyTotal.Add(e.Amount)
		switch e.PaymentMethod {
		case core.Cash:
			t.MonthlyCash = t.MonthlyCash.Add(e.Amount)
		case core.UPI:
			t.MonthlyUPI = t.MonthlyUPI.Add(e.Amount)
		}
		if e.Date.SameDay(now) {
			t.DailyTotal = t.DailyTotal.Add(e.Amount)
		}
	}
	return t
}

// Breakdown sums records per category. Categories with a zero sum are left
// out; items are ordered by amount, largest first, with ties kept in category
// order. Each percentage is rounded on its own, so they may not add up to
// exactly 100.
func Breakdown(records []core.Expense) CategoryBreakdown {
	sums := make(map[core.Category]int64, len(core.Categories))
	var total int64
	for _, e := range records {
		sums[e.Category] += e.Amount.Cents
		total += e.Amount.Cents
	}

	items := make([]BreakdownItem, 0, len(core.Categories))
	for _, c := range core.Categories {
		if sums[c] == 0 {
			continue
		}
		items = append(items, BreakdownItem{
			Category: c,
			Amount:   core.Money{Cents: sums[c]},
			Percent:  percent(sums[c], total),
			Color:    CategoryColors[c],
		})
	}
	// Stable sort keeps category order for equal amounts.
	slices.SortStableFunc(items, func(a, b BreakdownItem) int {
		switch {
		case a.Amount.Cents > b.Amount.Cents:
			return -1
		case a.Amount.Cents < b.Amount.Cents:
			return 1
		}
		return 0
	})
	return CategoryBreakdown{Total: core.Money{Cents: total}, Items: items}
}

// PaymentSplit returns the cash and UPI shares of the monthly total, in
// payment method order.
func PaymentSplit(t Totals) []PaymentShare {
	amounts := map[core.PaymentMethod]core.Money{
		core.Cash: t.MonthlyCash,
		core.UPI:  t.MonthlyUPI,
	}
	out := make([]PaymentShare, 0, len(core.PaymentMethods))
	for _, m := range core.PaymentMethods {
		out = append(out, PaymentShare{
			Method:  m,
			Amount:  amounts[m],
			Percent: percent(amounts[m].Cents, t.MonthlyTotal.Cents),
			Color:   PaymentColors[m],
		})
	}
	return out
}

// percent rounds part/total*100 to the nearest integer, halves away from zero.
func percent(part, total int64) int {
	if total == 0 {
		return 0
	}
	return int(decimal.NewFromInt(part).Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(total), 0).IntPart())
}
