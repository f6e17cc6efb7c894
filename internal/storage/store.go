package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"

	_ "modernc.org/sqlite"
)

const (
	DefaultDBPath     = "expenses.db"
	DefaultListLimit  = 1000
	DefaultWindowDays = 30
)

// ListOptions filters and caps List. A Limit <= 0 means DefaultListLimit.
type ListOptions struct {
	Range core.DateRange
	Limit int
}

// ExpenseStore owns the expenses table of one SQLite file. It holds a single
// connection for its lifetime and is not safe for concurrent use without
// external synchronization.
type ExpenseStore struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures an ExpenseStore.
type Option func(*ExpenseStore)

// WithClock overrides the clock used for default dates and trailing windows.
func WithClock(now func() time.Time) Option {
	return func(s *ExpenseStore) {
		s.now = now
	}
}

// Open opens (creating if absent) the database file at dbPath and makes sure
// the expenses table has the current shape.
func Open(dbPath string, opts ...Option) (*ExpenseStore, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	s := &ExpenseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle. The store must not be used afterwards.
func (s *ExpenseStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (s *ExpenseStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Add inserts one expense and returns its id. An empty date is stored as
// today. The store performs no semantic validation.
func (s *ExpenseStore) Add(ctx context.Context, e core.NewExpense) (int64, error) {
	date := e.Date
	if date == "" {
		date = core.Today(s.now())
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (date, category, amount, description) VALUES (?, ?, ?, ?)`,
		date, e.Category, e.Amount.InexactFloat64(), e.Description)
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"date", date,
		"category", e.Category,
		"amount", e.Amount.String())

	return id, nil
}

// Delete removes the expense with the given id. A missing id is not an error.
func (s *ExpenseStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.DebugContext(ctx, "Delete matched no expense", "id", id)
	} else {
		slog.InfoContext(ctx, "Expense deleted", "id", id)
	}
	return nil
}

// List returns expenses newest date first, truncated to opts.Limit rows.
func (s *ExpenseStore) List(ctx context.Context, opts ListOptions) ([]core.Expense, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	where, args := rangeClause(opts.Range)
	query := `SELECT id, date, COALESCE(category, 'Other'), amount, COALESCE(description, '')
		FROM expenses` + where + ` ORDER BY date DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		var (
			e      core.Expense
			amount float64
		)
		if err := rows.Scan(&e.ID, &e.Date, &e.Category, &amount, &e.Description); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Amount = decimal.NewFromFloat(amount)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// SumByCategory totals amounts per category within r, largest total first.
// Categories without matching rows are absent.
func (s *ExpenseStore) SumByCategory(ctx context.Context, r core.DateRange) ([]core.CategoryTotal, error) {
	where, args := rangeClause(r)
	query := `SELECT COALESCE(category, 'Other'), amount FROM expenses` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	// Rows are summed as decimals; SUM over REAL would add float noise.
	index := map[string]int{}
	totals := []core.CategoryTotal{}
	for rows.Next() {
		var (
			category string
			amount   float64
		)
		if err := rows.Scan(&category, &amount); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		i, ok := index[category]
		if !ok {
			i = len(totals)
			index[category] = i
			totals = append(totals, core.CategoryTotal{Category: category})
		}
		totals[i].Total = totals[i].Total.Add(decimal.NewFromFloat(amount))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}

	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
	return totals, nil
}

// DailyTotals totals amounts per date over the trailing window of days
// calendar days ending today, oldest date first. days <= 0 means
// DefaultWindowDays.
func (s *ExpenseStore) DailyTotals(ctx context.Context, days int) ([]core.DailyTotal, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	return s.DailyTotalsBetween(ctx, TrailingWindow(s.now(), days))
}

// DailyTotalsBetween totals amounts per date within r, oldest date first.
// Dates without expenses are absent.
func (s *ExpenseStore) DailyTotalsBetween(ctx context.Context, r core.DateRange) ([]core.DailyTotal, error) {
	where, args := rangeClause(r)
	query := `SELECT date, amount FROM expenses` + where + ` ORDER BY date ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily totals: %w", err)
	}
	defer rows.Close()

	totals := []core.DailyTotal{}
	for rows.Next() {
		var (
			date   string
			amount float64
		)
		if err := rows.Scan(&date, &amount); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}
		if n := len(totals); n == 0 || totals[n-1].Date != date {
			totals = append(totals, core.DailyTotal{Date: date})
		}
		last := &totals[len(totals)-1]
		last.Total = last.Total.Add(decimal.NewFromFloat(amount))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily totals: %w", err)
	}
	return totals, nil
}

// Now returns the store's notion of the current time.
func (s *ExpenseStore) Now() time.Time {
	return s.now()
}

// TrailingWindow is the inclusive range of days calendar days ending on the
// date of now.
func TrailingWindow(now time.Time, days int) core.DateRange {
	return core.DateRange{
		Start: core.WindowStart(now, days),
		End:   core.Today(now),
	}
}

// rangeClause builds the WHERE clause for an inclusive date range. Dates are
// compared as strings, which is chronological for YYYY-MM-DD.
func rangeClause(r core.DateRange) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if r.Start != "" {
		conds = append(conds, "date >= ?")
		args = append(args, r.Start)
	}
	if r.End != "" {
		conds = append(conds, "date <= ?")
		args = append(args, r.End)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
