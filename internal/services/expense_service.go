package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// ExpenseRepository is the persistence contract the service depends on.
// storage.ExpenseStore implements it.
type ExpenseRepository interface {
	Add(ctx context.Context, e core.NewExpense) (int64, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, opts storage.ListOptions) ([]core.Expense, error)
	SumByCategory(ctx context.Context, r core.DateRange) ([]core.CategoryTotal, error)
	DailyTotalsBetween(ctx context.Context, r core.DateRange) ([]core.DailyTotal, error)
	Close() error
}

// ValidationError reports input rejected before it reaches the store.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExpenseService validates user input and orchestrates store reads for the
// front ends. The store itself trusts its caller; this is that caller.
type ExpenseService struct {
	storage    ExpenseRepository
	now        func() time.Time
	windowDays int
}

// NewExpenseService wires a repository. windowDays <= 0 falls back to
// storage.DefaultWindowDays.
func NewExpenseService(repo ExpenseRepository, windowDays int) *ExpenseService {
	if windowDays <= 0 {
		windowDays = storage.DefaultWindowDays
	}
	return &ExpenseService{
		storage:    repo,
		now:        time.Now,
		windowDays: windowDays,
	}
}

// SetClock overrides the clock used to resolve "today".
func (s *ExpenseService) SetClock(now func() time.Time) {
	s.now = now
}

// WindowDays is the default chart window.
func (s *ExpenseService) WindowDays() int {
	return s.windowDays
}

// CreateExpense validates in and persists it, returning the stored record.
func (s *ExpenseService) CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	ne, err := in.Parse(s.now())
	if err != nil {
		return core.Expense{}, &ValidationError{Field: fieldFor(err), Err: err}
	}

	id, err := s.storage.Add(ctx, ne)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	return core.Expense{
		ID:          id,
		Amount:      ne.Amount,
		Category:    ne.Category,
		Date:        ne.Date,
		Description: ne.Description,
	}, nil
}

// DeleteExpense removes an expense. Deleting an unknown id succeeds.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Err: fmt.Errorf("invalid expense id %d", id)}
	}
	if err := s.storage.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// ListExpenses returns expenses newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, opts storage.ListOptions) ([]core.Expense, error) {
	if err := opts.Range.Validate(); err != nil {
		return nil, &ValidationError{Field: "range", Err: err}
	}
	items, err := s.storage.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

// CategoryTotals sums expenses per category inside r.
func (s *ExpenseService) CategoryTotals(ctx context.Context, r core.DateRange) ([]core.CategoryTotal, error) {
	if err := r.Validate(); err != nil {
		return nil, &ValidationError{Field: "range", Err: err}
	}
	totals, err := s.storage.SumByCategory(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	return totals, nil
}

// DailyTotals sums expenses per date inside r.
func (s *ExpenseService) DailyTotals(ctx context.Context, r core.DateRange) ([]core.DailyTotal, error) {
	if err := r.Validate(); err != nil {
		return nil, &ValidationError{Field: "range", Err: err}
	}
	totals, err := s.storage.DailyTotalsBetween(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("daily totals: %w", err)
	}
	return totals, nil
}

// Window returns the trailing range of days ending today. days <= 0 uses
// the service default.
func (s *ExpenseService) Window(days int) core.DateRange {
	if days <= 0 {
		days = s.windowDays
	}
	return storage.TrailingWindow(s.now(), days)
}

// Overview computes both chart series over the same trailing window.
func (s *ExpenseService) Overview(ctx context.Context, days int) (core.Overview, error) {
	if days <= 0 {
		days = s.windowDays
	}
	window := s.Window(days)

	byCat, err := s.storage.SumByCategory(ctx, window)
	if err != nil {
		return core.Overview{}, fmt.Errorf("overview categories: %w", err)
	}
	daily, err := s.storage.DailyTotalsBetween(ctx, window)
	if err != nil {
		return core.Overview{}, fmt.Errorf("overview daily totals: %w", err)
	}

	ov := core.Overview{
		Start:      window.Start,
		End:        window.End,
		Days:       days,
		Total:      core.SumCategoryTotals(byCat),
		ByCategory: byCat,
		Daily:      daily,
	}
	slog.DebugContext(ctx, "Overview computed",
		"start", ov.Start,
		"end", ov.End,
		"categories", len(byCat),
		"days_with_expenses", len(daily))
	return ov, nil
}

// Close releases the underlying repository.
func (s *ExpenseService) Close() error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}

func fieldFor(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return "amount"
	case errors.Is(err, core.ErrInvalidDate):
		return "date"
	case errors.Is(err, core.ErrEmptyCategory), errors.Is(err, core.ErrCategoryTooLong):
		return "category"
	case errors.Is(err, core.ErrDescriptionTooLong):
		return "description"
	default:
		return "expense"
	}
}
