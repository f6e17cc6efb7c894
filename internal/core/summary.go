package core

import "github.com/shopspring/decimal"

// CategoryTotal is the summed amount of one category.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
}

// DailyTotal is the summed amount of one calendar date.
type DailyTotal struct {
	Date  string
	Total decimal.Decimal
}

// Overview feeds the chart views: both series cover the same window.
type Overview struct {
	Start      string
	End        string
	Days       int
	Total      decimal.Decimal
	ByCategory []CategoryTotal
	Daily      []DailyTotal
}

// CategoryTotalsMap indexes totals by category name.
func CategoryTotalsMap(totals []CategoryTotal) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(totals))
	for _, t := range totals {
		m[t.Category] = t.Total
	}
	return m
}

// DailyTotalsMap indexes totals by date.
func DailyTotalsMap(totals []DailyTotal) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(totals))
	for _, t := range totals {
		m[t.Date] = t.Total
	}
	return m
}

// SumCategoryTotals adds up every category total.
func SumCategoryTotals(totals []CategoryTotal) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t.Total)
	}
	return sum
}
