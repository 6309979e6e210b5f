package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"contabile/internal/cli"
	"contabile/internal/core"
	"contabile/internal/expense"
	"contabile/internal/export"
	"contabile/internal/export/csv"
	"contabile/internal/export/google"
	"contabile/internal/query"
)

// stringsFlag collects a repeatable flag into a slice.
type stringsFlag []string

func (s *stringsFlag) String() string { return fmt.Sprint([]string(*s)) }

func (s *stringsFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func (a *app) runExpenses(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: contabile expenses <list|search|add|edit|rm>")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "list":
		return a.listExpenses(ctx, args[1:])
	case "search":
		return a.searchExpenses(ctx)
	case "add":
		return a.addExpense(ctx, args[1:])
	case "edit":
		return a.editExpense(ctx, args[1:])
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: contabile expenses rm <id>")
		}
		if err := a.cache.DeleteExpense(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("Deleted expense %s.\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown expenses subcommand %q", args[0])
	}
}

// searchExpenses is an interactive prompt loop. Each input line reschedules
// the derivation, so a burst of edits renders once after the typing settles.
func (a *app) searchExpenses(ctx context.Context) error {
	if err := a.cache.Refresh(ctx); err != nil {
		return err
	}

	debouncer := cli.NewDebouncer(time.Second)
	defer debouncer.Stop()

	fmt.Println("Type to search (empty line shows everything, Ctrl-D quits).")
	for {
		line, err := cli.ReadLine(os.Stdin, os.Stdout, "search> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		debouncer.Do(func() {
			view := query.Derive(a.cache.Expenses(), query.Description{Query: line})
			for _, e := range view {
				fmt.Printf("%s  %s  %s  %s\n", e.SpentAt, e.Amount, e.Title, e.Category)
			}
			fmt.Printf("%d matching expenses\n", len(view))
		})
	}
}

func (a *app) listExpenses(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("expenses list", flag.ContinueOnError)
	q := fs.String("query", "", "Text search over title, note, and category")
	sortKey := fs.String("sort", "", "Sort key: title, amountAsc, amountDesc, spentAtAsc, spentAtDesc")
	var filters stringsFlag
	fs.Var(&filters, "filter", "Category name to include (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.cache.Refresh(ctx); err != nil {
		return err
	}

	view := query.Derive(a.cache.Expenses(), query.Description{
		Query:   *q,
		Sort:    query.Sort(*sortKey),
		Filters: filters,
	})
	if len(view) == 0 {
		fmt.Println("No expenses.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTITLE\tAMOUNT\tCATEGORY\tNOTE")
	var total core.Money
	for _, e := range view {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.SpentAt, e.Title, e.Amount, e.Category, e.Note)
		total.Cents += e.Amount.Cents
	}
	fmt.Fprintf(w, "\t\t\t%s\t(%d expenses)\t\n", total, len(view))
	return w.Flush()
}

func (a *app) addExpense(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("expenses add", flag.ContinueOnError)
	title := fs.String("title", "", "Expense title")
	amount := fs.String("amount", "", "Amount, e.g. 12.34")
	date := fs.String("date", "", "Spent-at date YYYY-MM-DD (default today)")
	note := fs.String("note", "", "Optional note")
	category := fs.String("category", "", "Category name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" || *amount == "" || *category == "" {
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: title, amount, category")
	}

	money, err := core.ParseMoney(*amount)
	if err != nil {
		return err
	}
	spentAt := core.Today()
	if *date != "" {
		spentAt, err = core.ParseDate(*date)
		if err != nil {
			return err
		}
	}

	created, err := a.cache.AddExpense(ctx, expense.ExpenseDraft{
		Title:    *title,
		Amount:   money,
		SpentAt:  spentAt,
		Note:     *note,
		Category: *category,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Added expense %s: %s %s (%s).\n", created.ID, created.Title, created.Amount, created.Category)
	return nil
}

func (a *app) editExpense(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("expenses edit", flag.ContinueOnError)
	id := fs.String("id", "", "Expense id")
	title := fs.String("title", "", "New title")
	amount := fs.String("amount", "", "New amount, e.g. 12.34")
	date := fs.String("date", "", "New spent-at date YYYY-MM-DD")
	note := fs.String("note", "", "New note")
	category := fs.String("category", "", "New category name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("missing required flag: id")
	}

	var patch expense.ExpensePatch
	changed := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			patch.Title = title
			changed = true
		case "note":
			patch.Note = note
			changed = true
		case "category":
			patch.Category = category
			changed = true
		}
	})
	if *amount != "" {
		money, err := core.ParseMoney(*amount)
		if err != nil {
			return err
		}
		patch.Amount = &money
		changed = true
	}
	if *date != "" {
		spentAt, err := core.ParseDate(*date)
		if err != nil {
			return err
		}
		patch.SpentAt = &spentAt
		changed = true
	}
	if !changed {
		return fmt.Errorf("nothing to change, pass at least one field flag")
	}

	updated, err := a.cache.UpdateExpense(ctx, *id, patch)
	if err != nil {
		return err
	}
	fmt.Printf("Updated expense %s: %s %s (%s).\n", updated.ID, updated.Title, updated.Amount, updated.Category)
	return nil
}

func (a *app) runCategories(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: contabile categories <list|add|rename|rm>")
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	switch args[0] {
	case "list":
		if err := a.cache.LoadCategories(ctx); err != nil {
			return err
		}
		categories := a.cache.Categories()
		if len(categories) == 0 {
			fmt.Println("No categories.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, c := range categories {
			fmt.Fprintf(w, "%d\t%s\n", c.ID, c.Name)
		}
		return w.Flush()

	case "add":
		if len(args) != 2 {
			return fmt.Errorf("usage: contabile categories add <name>")
		}
		created, err := a.cache.AddCategory(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Added category %d: %s.\n", created.ID, created.Name)
		return nil

	case "rename":
		if len(args) != 3 {
			return fmt.Errorf("usage: contabile categories rename <id> <new-name>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid category id %q", args[1])
		}
		updated, err := a.cache.RenameCategory(ctx, id, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Renamed category %d to %s.\n", updated.ID, updated.Name)
		return nil

	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: contabile categories rm <id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid category id %q", args[1])
		}
		if err := a.cache.DeleteCategory(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted category %d and its expenses.\n", id)
		return nil

	default:
		return fmt.Errorf("unknown categories subcommand %q", args[0])
	}
}

func (a *app) runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	format := fs.String("format", "csv", "Export format: csv or sheets")
	out := fs.String("out", "", "Output file for csv (default stdout)")
	q := fs.String("query", "", "Text search over title, note, and category")
	sortKey := fs.String("sort", "", "Sort key: title, amountAsc, amountDesc, spentAtAsc, spentAtDesc")
	var filters stringsFlag
	fs.Var(&filters, "filter", "Category name to include (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	if err := a.cache.Refresh(ctx); err != nil {
		return err
	}
	view := query.Derive(a.cache.Expenses(), query.Description{
		Query:   *q,
		Sort:    query.Sort(*sortKey),
		Filters: filters,
	})

	var exporter export.Exporter
	switch *format {
	case "csv":
		w := os.Stdout
		if *out != "" {
			f, err := os.Create(*out)
			if err != nil {
				return fmt.Errorf("create %s: %w", *out, err)
			}
			defer f.Close()
			w = f
		}
		exporter = csv.New(w)
	case "sheets":
		sheets, err := google.NewFromEnv(ctx)
		if err != nil {
			return err
		}
		exporter = sheets
	default:
		return fmt.Errorf("unknown export format %q", *format)
	}

	n, err := exporter.Export(ctx, view)
	if err != nil {
		return err
	}
	if *format == "sheets" || *out != "" {
		fmt.Fprintf(os.Stderr, "Exported %d expenses.\n", n)
	}
	return nil
}
