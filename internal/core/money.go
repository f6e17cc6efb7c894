// Money parsing from user input and formatting for display.

package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed decimal string into a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// zero, thousands separators and non-numeric input are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with exactly two decimals, e.g. "12.50".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
