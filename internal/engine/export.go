package engine

import (
	"errors"
	"strings"
	"time"

	"khorcha/internal/core"
)

// ErrNothingToExport is returned when asked to export an empty list.
var ErrNothingToExport = errors.New("nothing to export")

// ExportHeader is the header row of every export.
var ExportHeader = []string{"date", "name", "category", "paymentMethod", "amount"}

// ExportRows returns the export table, header first, with unquoted cells.
func ExportRows(records []core.Expense) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, append([]string(nil), ExportHeader...))
	for _, e := range records {
		rows = append(rows, []string{
			e.Date.String(),
			e.Name,
			e.Category.String(),
			e.PaymentMethod.String(),
			e.Amount.String(),
		})
	}
	return rows
}

// ExportCSV renders records as CSV in input order. Every field is quoted,
// embedded quotes are doubled and rows are separated by a single "\n" with no
// trailing newline.
func ExportCSV(records []core.Expense) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNothingToExport
	}
	var b strings.Builder
	for i, row := range ExportRows(records) {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			b.WriteByte('"')
		}
	}
	return []byte(b.String()), nil
}

// ExportFilename returns the download name for the month of now.
func ExportFilename(now time.Time) string {
	return "khorcha-khata-" + now.Format("2006-01") + ".csv"
}
