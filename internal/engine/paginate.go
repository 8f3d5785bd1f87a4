package engine

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"
	"strings"

	"khorcha/internal/core"
)

// PageSize is the number of records on a page of every list.
const PageSize = 5

type Page struct {
	Items       []core.Expense `json:"items"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
}

// TotalPages returns ceil(n/size), which is 0 for an empty list.
func TotalPages(n, size int) int {
	if size <= 0 {
		size = PageSize
	}
	return (n + size - 1) / size
}

// ClampPage limits page to [1, max(totalPages, 1)].
func ClampPage(page, totalPages int) int {
	upper := max(totalPages, 1)
	return min(max(page, 1), upper)
}

// Paginate returns the requested page of records, clamped to the pages that
// exist. The last page holds whatever is left and is not padded.
func Paginate(records []core.Expense, pageSize, page int) Page {
	if pageSize <= 0 {
		pageSize = PageSize
	}
	total := TotalPages(len(records), pageSize)
	current := ClampPage(page, total)

	start := min((current-1)*pageSize, len(records))
	end := min(current*pageSize, len(records))
	items := make([]core.Expense, end-start)
	copy(items, records[start:end])

	return Page{Items: items, CurrentPage: current, TotalPages: total}
}

// Pager keeps the page cursor of one rendered list between recomputations.
//
// Sync must be called with the list every time it is recomputed. When the
// list differs from the previous one the cursor goes back to page 1;
// otherwise it is re-clamped so a shrunken list never shows an empty page.
// A Pager is not safe for concurrent use.
type Pager struct {
	size        int
	records     []core.Expense
	fingerprint uint64
	synced      bool
	current     int
}

// NewPager returns a pager with the given page size, or PageSize if size is
// not positive.
func NewPager(size int) *Pager {
	if size <= 0 {
		size = PageSize
	}
	return &Pager{size: size, current: 1}
}

// Sync installs the latest version of the list.
func (p *Pager) Sync(records []core.Expense) {
	fp := Fingerprint(records)
	if !p.synced || fp != p.fingerprint {
		p.current = 1
	}
	p.records = records
	p.fingerprint = fp
	p.synced = true
	p.current = ClampPage(p.current, p.TotalPages())
}

// Reset moves the cursor back to page 1.
func (p *Pager) Reset() {
	p.current = 1
}

// Go moves to page n, clamped to the pages that exist.
func (p *Pager) Go(n int) {
	p.current = ClampPage(n, p.TotalPages())
}

func (p *Pager) Next() { p.Go(p.current + 1) }

func (p *Pager) Prev() { p.Go(p.current - 1) }

// GoInput moves to the page typed by the user. Text that is not a whole
// number is ignored.
func (p *Pager) GoInput(text string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return false
	}
	p.Go(n)
	return true
}

func (p *Pager) Current() int { return p.current }

func (p *Pager) TotalPages() int { return TotalPages(len(p.records), p.size) }

// Page returns the items of the current page.
func (p *Pager) Page() Page {
	return Paginate(p.records, p.size, p.current)
}

// Fingerprint hashes the ordered content of a list. Two lists with the same
// records in the same order share a fingerprint.
func Fingerprint(records []core.Expense) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, e := range records {
		for _, s := range []string{e.ID, e.Name, string(e.Category), string(e.PaymentMethod), e.Date.String()} {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Amount.Cents))
		h.Write(buf[:])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(len(records)))
	h.Write(buf[:])
	return h.Sum64()
}
