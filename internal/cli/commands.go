package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"expensetracker/internal/core"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

// ErrUsage is returned when the command line cannot be understood.
var ErrUsage = errors.New("usage error")

const usage = `Usage: expensectl <command> [flags]

Commands:
  add         record an expense (-amount, -category, -date, -description)
  list        list expenses newest first (-start, -end, -limit)
  delete ID   delete an expense
  categories  totals per category (-days or -start/-end)
  daily       totals per day (-days or -start/-end)
`

// Run executes one expensectl command against svc, writing human output to
// stdout.
func Run(ctx context.Context, svc *services.ExpenseService, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "add":
		return runAdd(ctx, svc, rest, stdout)
	case "list":
		return runList(ctx, svc, rest, stdout)
	case "delete", "rm":
		return runDelete(ctx, svc, rest, stdout)
	case "categories":
		return runCategories(ctx, svc, rest, stdout)
	case "daily":
		return runDaily(ctx, svc, rest, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

func runAdd(ctx context.Context, svc *services.ExpenseService, args []string, stdout io.Writer) error {
	fs := newFlagSet("add", stdout)
	var in core.ExpenseInput
	fs.StringVar(&in.Amount, "amount", "", "amount spent, e.g. 12.50")
	fs.StringVar(&in.Category, "category", core.DefaultCategory, "expense category")
	fs.StringVar(&in.Date, "date", "", "date as YYYY-MM-DD (default today)")
	fs.StringVar(&in.Description, "description", "", "optional note")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if in.Amount == "" && fs.NArg() > 0 {
		in.Amount = fs.Arg(0)
	}

	e, err := svc.CreateExpense(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Added expense #%d: %s %s on %s\n", e.ID, core.FormatAmount(e.Amount), e.Category, e.Date)
	return nil
}

func runList(ctx context.Context, svc *services.ExpenseService, args []string, stdout io.Writer) error {
	fs := newFlagSet("list", stdout)
	var opts storage.ListOptions
	fs.StringVar(&opts.Range.Start, "start", "", "first date to include (YYYY-MM-DD)")
	fs.StringVar(&opts.Range.End, "end", "", "last date to include (YYYY-MM-DD)")
	fs.IntVar(&opts.Limit, "limit", storage.DefaultListLimit, "maximum rows")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	items, err := svc.ListExpenses(ctx, opts)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "No expenses found")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, e := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Category, core.FormatAmount(e.Amount), e.Description)
	}
	return tw.Flush()
}

func runDelete(ctx context.Context, svc *services.ExpenseService, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete takes exactly one expense id", ErrUsage)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid expense id %q", ErrUsage, args[0])
	}
	if err := svc.DeleteExpense(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted expense #%d\n", id)
	return nil
}

// rangeFlags registers -days, -start and -end and resolves them into a range.
// Explicit bounds win over -days.
type rangeFlags struct {
	days       int
	start, end string
}

func (rf *rangeFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&rf.days, "days", 0, "trailing window in days (default from service)")
	fs.StringVar(&rf.start, "start", "", "first date to include (YYYY-MM-DD)")
	fs.StringVar(&rf.end, "end", "", "last date to include (YYYY-MM-DD)")
}

func (rf *rangeFlags) resolve(svc *services.ExpenseService) core.DateRange {
	if rf.start != "" || rf.end != "" {
		return core.DateRange{Start: rf.start, End: rf.end}
	}
	return svc.Window(rf.days)
}

func runCategories(ctx context.Context, svc *services.ExpenseService, args []string, stdout io.Writer) error {
	fs := newFlagSet("categories", stdout)
	var rf rangeFlags
	rf.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	r := rf.resolve(svc)
	totals, err := svc.CategoryTotals(ctx, r)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		fmt.Fprintln(stdout, "No data yet")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tAMOUNT")
	for _, t := range totals {
		fmt.Fprintf(tw, "%s\t%s\n", t.Category, core.FormatAmount(t.Total))
	}
	fmt.Fprintf(tw, "TOTAL\t%s\n", core.FormatAmount(core.SumCategoryTotals(totals)))
	return tw.Flush()
}

func runDaily(ctx context.Context, svc *services.ExpenseService, args []string, stdout io.Writer) error {
	fs := newFlagSet("daily", stdout)
	var rf rangeFlags
	rf.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	totals, err := svc.DailyTotals(ctx, rf.resolve(svc))
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		fmt.Fprintln(stdout, "No daily data")
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tAMOUNT")
	for _, t := range totals {
		fmt.Fprintf(tw, "%s\t%s\n", t.Date, core.FormatAmount(t.Total))
	}
	return tw.Flush()
}
