// Package core holds the expense domain types, input validation and date helpers.
package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk and wire format of expense dates. Lexicographic
// order of strings in this layout matches chronological order.
const DateLayout = "2006-01-02"

const (
	DefaultCategory = "Other"

	MaxCategoryLength    = 50
	MaxDescriptionLength = 200
)

// DefaultCategories is the conventional category set offered by the front ends.
var DefaultCategories = []string{"Food", "Transport", "Shopping", "Bills", "Study", DefaultCategory}

type (
	// Expense is one persisted spending event.
	Expense struct {
		ID          int64
		Amount      decimal.Decimal
		Category    string
		Date        string // YYYY-MM-DD
		Description string
	}

	// NewExpense is the insert payload; the store assigns the ID.
	NewExpense struct {
		Amount      decimal.Decimal
		Category    string
		Date        string // empty means today
		Description string
	}

	// ExpenseInput carries raw, unvalidated values as typed by a user.
	ExpenseInput struct {
		Amount      string
		Category    string
		Date        string
		Description string
	}

	// DateRange is an inclusive filter on expense dates. Either bound may be
	// empty, which leaves that side open.
	DateRange struct {
		Start string
		End   string
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrEmptyCategory      = errors.New("empty category")
	ErrCategoryTooLong    = errors.New("category too long (max 50 characters)")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

// Parse validates the raw input and converts it into an insert payload.
// An empty date resolves to the calendar day of now.
func (in ExpenseInput) Parse(now time.Time) (NewExpense, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return NewExpense{}, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		return NewExpense{}, ErrEmptyCategory
	}
	if len(category) > MaxCategoryLength {
		return NewExpense{}, ErrCategoryTooLong
	}

	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = Today(now)
	} else if _, err := ParseDate(date); err != nil {
		return NewExpense{}, err
	}

	desc := strings.TrimSpace(in.Description)
	if len(desc) > MaxDescriptionLength {
		return NewExpense{}, ErrDescriptionTooLong
	}

	return NewExpense{
		Amount:      amount,
		Category:    category,
		Date:        date,
		Description: desc,
	}, nil
}

// Validate checks both bounds are well formed and ordered.
func (r DateRange) Validate() error {
	if r.Start != "" {
		if _, err := ParseDate(r.Start); err != nil {
			return err
		}
	}
	if r.End != "" {
		if _, err := ParseDate(r.End); err != nil {
			return err
		}
	}
	if r.Start != "" && r.End != "" && r.Start > r.End {
		return errors.New("start date must not be after end date")
	}
	return nil
}

// IsZero reports whether the range applies no filter at all.
func (r DateRange) IsZero() bool {
	return r.Start == "" && r.End == ""
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today returns the calendar date of now in DateLayout.
func Today(now time.Time) string {
	return FormatDate(now)
}

// WindowStart returns the first date of a trailing window of days calendar
// days ending on the date of now.
func WindowStart(now time.Time, days int) string {
	y, m, d := now.Date()
	return FormatDate(time.Date(y, m, d-days, 0, 0, 0, 0, now.Location()))
}
