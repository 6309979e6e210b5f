// Package query derives displayable views from the cached expense
// collection. Derivation is pure: no network, no side effects, the same
// inputs always produce the same output, so it is safe to recompute on
// every render.
package query

import (
	"net/url"
	"sort"
	"strings"

	"contabile/internal/core"
)

// Sort selects the ordering of a derived view.
type Sort string

const (
	SortTitle      Sort = "title"
	SortAmountAsc  Sort = "amountAsc"
	SortAmountDesc Sort = "amountDesc"
	SortSpentAtAsc Sort = "spentAtAsc"

	// SortSpentAtDesc is the default; unrecognized keys fall back to it.
	SortSpentAtDesc Sort = "spentAtDesc"
)

// Description is the externally supplied filter/sort/search state. It is
// transient: the caller (URL or UI layer) owns it and passes it in on each
// derivation.
type Description struct {
	Query   string
	Sort    Sort
	Filters []string
}

// ParseValues reads a Description from URL-encoded form: `query`, `sort`,
// and repeated `filter` keys.
func ParseValues(values url.Values) Description {
	return Description{
		Query:   values.Get("query"),
		Sort:    Sort(values.Get("sort")),
		Filters: values["filter"],
	}
}

// Values renders the Description back to URL-encoded form, dropping empty
// fields.
func (d Description) Values() url.Values {
	values := url.Values{}
	if d.Query != "" {
		values.Set("query", d.Query)
	}
	if d.Sort != "" {
		values.Set("sort", string(d.Sort))
	}
	for _, f := range d.Filters {
		values.Add("filter", f)
	}
	return values
}

// Derive applies the text filter, the category filter, and the sort, in that
// fixed order, and returns a new slice. The input is never modified. The
// sort is stable, so ties keep their relative input order.
func Derive(expenses []core.Expense, d Description) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))

	needle := strings.ToLower(strings.TrimSpace(d.Query))
	for _, e := range expenses {
		if needle != "" && !matchesQuery(e, needle) {
			continue
		}
		if len(d.Filters) > 0 && !containsString(d.Filters, e.Category) {
			continue
		}
		out = append(out, e)
	}

	sortExpenses(out, d.Sort)
	return out
}

// matchesQuery reports whether any of title, note, or category contains the
// lowercase needle.
func matchesQuery(e core.Expense, needle string) bool {
	return strings.Contains(strings.ToLower(e.Title), needle) ||
		(e.Note != "" && strings.Contains(strings.ToLower(e.Note), needle)) ||
		strings.Contains(strings.ToLower(e.Category), needle)
}

func containsString(haystack []string, s string) bool {
	for _, h := range haystack {
		if h == s {
			return true
		}
	}
	return false
}

func sortExpenses(expenses []core.Expense, key Sort) {
	switch key {
	case SortTitle:
		sort.SliceStable(expenses, func(i, j int) bool {
			return expenses[i].Title < expenses[j].Title
		})
	case SortAmountAsc:
		sort.SliceStable(expenses, func(i, j int) bool {
			return expenses[i].Amount.Cents < expenses[j].Amount.Cents
		})
	case SortAmountDesc:
		sort.SliceStable(expenses, func(i, j int) bool {
			return expenses[i].Amount.Cents > expenses[j].Amount.Cents
		})
	case SortSpentAtAsc:
		sort.SliceStable(expenses, func(i, j int) bool {
			return expenses[i].SpentAt.Before(expenses[j].SpentAt.Time)
		})
	default:
		// spentAtDesc, including absent and unrecognized keys.
		sort.SliceStable(expenses, func(i, j int) bool {
			return expenses[i].SpentAt.Time.After(expenses[j].SpentAt.Time)
		})
	}
}
