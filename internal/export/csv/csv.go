// Package csv exports expenses as comma-separated values.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"contabile/internal/core"
)

var header = []string{"date", "title", "amount", "category", "note"}

// Exporter writes one header row followed by one row per expense.
type Exporter struct {
	w io.Writer
}

func New(w io.Writer) *Exporter {
	return &Exporter{w: w}
}

func (e *Exporter) Export(_ context.Context, expenses []core.Expense) (int, error) {
	writer := csv.NewWriter(e.w)

	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	for i, exp := range expenses {
		row := []string{
			exp.SpentAt.String(),
			exp.Title,
			exp.Amount.String(),
			exp.Category,
			exp.Note,
		}
		if err := writer.Write(row); err != nil {
			return i, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return len(expenses), fmt.Errorf("flush: %w", err)
	}
	return len(expenses), nil
}
