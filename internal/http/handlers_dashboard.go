package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

type categoryBar struct {
	Category string
	Amount   string
	Percent  string
	Width    int
}

type dailyBar struct {
	Date   string
	Label  string
	Amount string
	Height int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Today      string
		Categories []string
		Default    string
		WindowDays int
		ListLimit  int
	}{
		Today:      core.Today(s.now()),
		Categories: core.DefaultCategories,
		Default:    core.DefaultCategory,
		WindowDays: s.expenses.WindowDays(),
		ListLimit:  s.listLimit,
	}
	s.render(w, r, "index.html", data)
}

// handleCharts renders the category breakdown and the daily series for the
// trailing window.
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	days, err := parseDays(r.URL.Query())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ov, err := s.expenses.Overview(r.Context(), days)
	if err != nil {
		logger.ErrorContext(r.Context(), "Overview error",
			applog.FieldError, err,
			applog.FieldDays, days,
			applog.FieldOperation, applog.OpAggregate)
		InternalServerError("Error loading charts").Write(w)
		return
	}

	data := struct {
		Start      string
		End        string
		Days       int
		Total      string
		Categories []categoryBar
		Daily      []dailyBar
		MaxDaily   string
	}{
		Start:      ov.Start,
		End:        ov.End,
		Days:       ov.Days,
		Total:      core.FormatAmount(ov.Total),
		Categories: categoryBars(ov.ByCategory, ov.Total),
	}
	data.Daily, data.MaxDaily = dailyBars(ov.Daily)

	s.render(w, r, "charts.html", data)
}

// categoryBars scales each category against the largest one and reports its
// share of total.
func categoryBars(totals []core.CategoryTotal, total decimal.Decimal) []categoryBar {
	maxTotal := decimal.Zero
	for _, t := range totals {
		if t.Total.GreaterThan(maxTotal) {
			maxTotal = t.Total
		}
	}

	bars := make([]categoryBar, 0, len(totals))
	for _, t := range totals {
		bars = append(bars, categoryBar{
			Category: t.Category,
			Amount:   core.FormatAmount(t.Total),
			Percent:  sharePercent(t.Total, total),
			Width:    barSize(t.Total, maxTotal),
		})
	}
	return bars
}

func dailyBars(totals []core.DailyTotal) ([]dailyBar, string) {
	maxTotal := decimal.Zero
	for _, t := range totals {
		if t.Total.GreaterThan(maxTotal) {
			maxTotal = t.Total
		}
	}

	bars := make([]dailyBar, 0, len(totals))
	for _, t := range totals {
		label := t.Date
		if len(label) == len(core.DateLayout) {
			label = label[5:]
		}
		bars = append(bars, dailyBar{
			Date:   t.Date,
			Label:  label,
			Amount: core.FormatAmount(t.Total),
			Height: barSize(t.Total, maxTotal),
		})
	}
	return bars, core.FormatAmount(maxTotal)
}

// barSize is value as a rounded percentage of peak, at least 2 so small
// values stay visible.
func barSize(value, peak decimal.Decimal) int {
	if !peak.IsPositive() || !value.IsPositive() {
		return 0
	}
	size := int(value.Mul(decimal.NewFromInt(100)).Div(peak).Round(0).IntPart())
	if size < 2 {
		size = 2
	}
	if size > 100 {
		size = 100
	}
	return size
}

// sharePercent renders value/total as a percentage with one decimal.
func sharePercent(value, total decimal.Decimal) string {
	if !total.IsPositive() {
		return "0.0%"
	}
	return value.Mul(decimal.NewFromInt(100)).Div(total).StringFixed(1) + "%"
}
