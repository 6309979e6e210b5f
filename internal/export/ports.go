// Package export turns the cached expense collection into external
// artifacts (spreadsheets, files).
package export

import (
	"context"

	"contabile/internal/core"
)

// Exporter writes a snapshot of expenses somewhere and reports how many
// rows it wrote.
type Exporter interface {
	Export(ctx context.Context, expenses []core.Expense) (int, error)
}
