package csv

import (
	"context"
	"strings"
	"testing"

	"contabile/internal/core"
)

func TestExporter_Export(t *testing.T) {
	expenses := []core.Expense{
		{
			ID:       "e1",
			Title:    "Coffee",
			Amount:   core.Money{Cents: 300},
			SpentAt:  core.NewDate(2024, 5, 10),
			Category: "Food",
		},
		{
			ID:       "e2",
			Title:    "Train, with comma",
			Amount:   core.Money{Cents: 1550},
			SpentAt:  core.NewDate(2024, 5, 12),
			Note:     "to the office",
			Category: "Travel",
		},
	}

	var sb strings.Builder
	n, err := New(&sb).Export(context.Background(), expenses)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows:\n%s", len(lines), sb.String())
	}
	if lines[0] != "date,title,amount,category,note" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2024-05-10,Coffee,3.00,Food," {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[2] != `2024-05-12,"Train, with comma",15.50,Travel,to the office` {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestExporter_EmptyCollection(t *testing.T) {
	var sb strings.Builder
	n, err := New(&sb).Export(context.Background(), nil)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
	if strings.TrimSpace(sb.String()) != "date,title,amount,category,note" {
		t.Errorf("output = %q, want header only", sb.String())
	}
}
