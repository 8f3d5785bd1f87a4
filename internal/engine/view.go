package engine

import (
	"maps"
	"time"

	"khorcha/internal/core"
)

// Params are the user-controlled view parameters. The zero value is valid
// and means "no filters, first page everywhere".
type Params struct {
	Search     string         `json:"q"`
	Category   core.Category  `json:"category"`
	Page       int            `json:"page"`
	MonthPages map[string]int `json:"monthPages,omitempty"` // keyed by YYYY-MM
}

// Normalize returns a copy of p with defaults filled in. Unknown categories
// fall back to CategoryAll.
func (p Params) Normalize() Params {
	if p.Category == "" || (p.Category != CategoryAll && !p.Category.IsValid()) {
		p.Category = CategoryAll
	}
	if p.Page < 1 {
		p.Page = 1
	}
	pages := make(map[string]int, len(p.MonthPages))
	for k, v := range p.MonthPages {
		if v > 1 {
			pages[k] = v
		}
	}
	p.MonthPages = pages
	return p
}

// Active reports whether a search or category filter is set.
func (p Params) Active() bool {
	return p.Search != "" || (p.Category != "" && p.Category != CategoryAll)
}

// Cleared returns p without filters. Every list goes back to its first page.
func (p Params) Cleared() Params {
	return Params{Category: CategoryAll, Page: 1, MonthPages: map[string]int{}}
}

// Equal reports whether two parameter sets select the same view.
func (p Params) Equal(o Params) bool {
	a, b := p.Normalize(), o.Normalize()
	return a.Search == b.Search && a.Category == b.Category && a.Page == b.Page &&
		maps.Equal(a.MonthPages, b.MonthPages)
}

// SameFilters reports whether p and o filter records the same way,
// regardless of page cursors.
func (p Params) SameFilters(o Params) bool {
	a, b := p.Normalize(), o.Normalize()
	return a.Search == b.Search && a.Category == b.Category
}

type ListView struct {
	Count int        `json:"count"`
	Total core.Money `json:"total"`
	Page
}

type MonthView struct {
	Key   string    `json:"key"`
	Start core.Date `json:"start"`
	ListView
}

// Dashboard is everything the expense screen renders.
type Dashboard struct {
	Params        Params            `json:"params"`
	Filtering     bool              `json:"filtering"`
	Totals        Totals            `json:"totals"`
	Payments      []PaymentShare    `json:"payments"`
	Breakdown     CategoryBreakdown `json:"breakdown"`
	Current       ListView          `json:"current"`
	Months        []MonthView       `json:"months"`
	RecordCount   int               `json:"recordCount"`
	FilteredCount int               `json:"filteredCount"`
	ExportName    string            `json:"exportName"`
	CanExport     bool              `json:"canExport"`
}

// Empty reports whether there is nothing to list under the current filters.
func (d Dashboard) Empty() bool {
	return d.FilteredCount == 0
}

// Compute runs the whole pipeline over one snapshot of records.
//
// Headline totals and the payment split come from the unfiltered current
// month; the breakdown and every list come from the filtered records.
func Compute(records []core.Expense, params Params, now time.Time) Dashboard {
	params = params.Normalize()

	filtered := Filter(records, params.Search, params.Category)
	parts := Partition(filtered, now)
	totals := Rollup(records, now)

	d := Dashboard{
		Params:        params,
		Filtering:     params.Active(),
		Totals:        totals,
		Payments:      PaymentSplit(totals),
		Breakdown:     Breakdown(parts.Current),
		Current:       listView(parts.Current, params.Page),
		Months:        make([]MonthView, 0, len(parts.Past)),
		RecordCount:   len(records),
		FilteredCount: len(filtered),
		ExportName:    ExportFilename(now),
		CanExport:     len(parts.Current) > 0,
	}
	for _, g := range parts.Past {
		lv := listView(g.Records, params.MonthPages[g.Key])
		lv.Total = g.Total
		d.Months = append(d.Months, MonthView{Key: g.Key, Start: g.Start, ListView: lv})
	}
	return d
}

func listView(records []core.Expense, page int) ListView {
	var total core.Money
	for _, e := range records {
		total = total.Add(e.Amount)
	}
	return ListView{Count: len(records), Total: total, Page: Paginate(records, PageSize, page)}
}

// Cursors carries the page cursor of every list of a live view from one
// recomputation to the next. A list whose content changed goes back to its
// first page; an unchanged list keeps its page, re-clamped.
//
// Cursors is not safe for concurrent use.
type Cursors struct {
	current *Pager
	months  map[string]*Pager
}

func NewCursors() *Cursors {
	return &Cursors{current: NewPager(PageSize), months: map[string]*Pager{}}
}

// Reset sends every list back to its first page.
func (c *Cursors) Reset() {
	c.current.Reset()
	for _, p := range c.months {
		p.Reset()
	}
}

// Apply syncs the cursors with the lists that records and params produce and
// returns params with every page replaced by the synced cursor. Month
// cursors of months that disappeared are dropped.
func (c *Cursors) Apply(records []core.Expense, params Params, now time.Time) Params {
	params = params.Normalize()
	parts := Partition(Filter(records, params.Search, params.Category), now)

	c.current.Sync(parts.Current)
	params.Page = c.current.Current()

	seen := make(map[string]struct{}, len(parts.Past))
	pages := make(map[string]int, len(parts.Past))
	for _, g := range parts.Past {
		seen[g.Key] = struct{}{}
		p, ok := c.months[g.Key]
		if !ok {
			p = NewPager(PageSize)
			c.months[g.Key] = p
		}
		p.Sync(g.Records)
		if n := p.Current(); n > 1 {
			pages[g.Key] = n
		}
	}
	for k := range c.months {
		if _, ok := seen[k]; !ok {
			delete(c.months, k)
		}
	}
	params.MonthPages = pages
	return params
}

// Go moves the cursor of one list. An empty key selects the current-month
// list. It reports false when no such list is shown.
func (c *Cursors) Go(key string, page int) bool {
	if key == "" {
		c.current.Go(page)
		return true
	}
	p, ok := c.months[key]
	if !ok {
		return false
	}
	p.Go(page)
	return true
}

// Pages returns the cursor positions as view parameters on top of params.
func (c *Cursors) Pages(params Params) Params {
	params = params.Normalize()
	params.Page = c.current.Current()
	pages := make(map[string]int, len(c.months))
	for k, p := range c.months {
		if n := p.Current(); n > 1 {
			pages[k] = n
		}
	}
	params.MonthPages = pages
	return params
}
