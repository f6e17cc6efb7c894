package http

import (
	"errors"
	"net/http"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

type expenseJSON struct {
	ID          int64  `json:"id"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:          e.ID,
		Amount:      core.FormatAmount(e.Amount),
		Category:    e.Category,
		Date:        e.Date,
		Description: e.Description,
	}
}

type totalJSON struct {
	Key   string `json:"key"`
	Total string `json:"total"`
}

// resolveRange picks explicit start/end when given, otherwise the trailing
// window of ?days (or the service default).
func (s *Server) resolveRange(r *http.Request) (core.DateRange, error) {
	query := r.URL.Query()
	if rng := parseDateRange(query); !rng.IsZero() {
		return rng, nil
	}
	days, err := parseDays(query)
	if err != nil {
		return core.DateRange{}, err
	}
	return s.expenses.Window(days), nil
}

func (s *Server) handleAPIListExpenses(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseLimit(query, s.listLimit)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "limit", err.Error())
		return
	}

	items, err := s.expenses.ListExpenses(r.Context(), storage.ListOptions{
		Range: parseDateRange(query),
		Limit: limit,
	})
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpList)
		return
	}

	out := make([]expenseJSON, 0, len(items))
	for _, e := range items {
		out = append(out, toExpenseJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": out,
		"count":    len(out),
	})
}

func (s *Server) handleAPICategoryTotals(w http.ResponseWriter, r *http.Request) {
	rng, err := s.resolveRange(r)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "days", err.Error())
		return
	}

	totals, err := s.expenses.CategoryTotals(r.Context(), rng)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpAggregate)
		return
	}

	out := make([]totalJSON, 0, len(totals))
	for _, t := range totals {
		out = append(out, totalJSON{Key: t.Category, Total: core.FormatAmount(t.Total)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start":      rng.Start,
		"end":        rng.End,
		"total":      core.FormatAmount(core.SumCategoryTotals(totals)),
		"categories": out,
	})
}

func (s *Server) handleAPIDailyTotals(w http.ResponseWriter, r *http.Request) {
	rng, err := s.resolveRange(r)
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "days", err.Error())
		return
	}

	totals, err := s.expenses.DailyTotals(r.Context(), rng)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpAggregate)
		return
	}

	out := make([]totalJSON, 0, len(totals))
	for _, t := range totals {
		out = append(out, totalJSON{Key: t.Date, Total: core.FormatAmount(t.Total)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start": rng.Start,
		"end":   rng.End,
		"days":  out,
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		writeJSONError(w, http.StatusUnprocessableEntity, ve.Field, ve.Error())
		return
	}
	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Service error",
		applog.FieldError, err,
		applog.FieldOperation, op)
	writeJSONError(w, http.StatusInternalServerError, "", "internal error")
}
