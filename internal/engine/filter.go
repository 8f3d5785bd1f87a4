// Package engine turns a user's raw expense records and the current view
// parameters into everything the dashboard shows: filtered lists, month
// groups, totals, category shares, pages and CSV exports.
//
// Every function here is pure. Inputs are never mutated and outputs never
// alias mutable state of a previous call, so a caller may recompute the whole
// pipeline on every snapshot or keystroke.
package engine

import (
	"strings"

	"khorcha/internal/core"
)

// CategoryAll is the category filter that matches every record.
const CategoryAll core.Category = "all"

// Filter returns the records matching both the category filter and the search
// text, in input order.
//
// An empty search matches everything. Otherwise a record matches when the
// lower-cased search text is a substring of its name, category, payment method
// or amount rendered as plain decimal text.
func Filter(records []core.Expense, search string, category core.Category) []core.Expense {
	needle := strings.ToLower(search)
	out := make([]core.Expense, 0, len(records))
	for _, e := range records {
		if matchesCategory(e, category) && matchesSearch(e, needle) {
			out = append(out, e)
		}
	}
	return out
}

func matchesCategory(e core.Expense, category core.Category) bool {
	return category == "" || category == CategoryAll || e.Category == category
}

func matchesSearch(e core.Expense, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Name), needle) ||
		strings.Contains(strings.ToLower(e.Category.String()), needle) ||
		strings.Contains(strings.ToLower(e.PaymentMethod.String()), needle) ||
		strings.Contains(e.Amount.String(), needle)
}
