package sheets

import (
	"context"
	"strings"
)

// Ports for outbound adapters.
type (
	// MonthWriter replaces the content of one sheet tab with rows.
	// The first row is the header.
	MonthWriter interface {
		WriteMonth(ctx context.Context, tab string, rows [][]string) error
	}
)

// TabName returns the tab that mirrors one user's month, e.g.
// "Khorcha 2024-01 u42". An empty prefix is left out.
func TabName(prefix, monthKey, userID string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, monthKey, userID} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
