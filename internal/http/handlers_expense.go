package http

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

// expenseRow is the template view of one expense.
type expenseRow struct {
	ID          int64
	Date        string
	Category    string
	Amount      string
	Description string
}

func toExpenseRows(items []core.Expense) []expenseRow {
	rows := make([]expenseRow, 0, len(items))
	for _, e := range items {
		rows = append(rows, expenseRow{
			ID:          e.ID,
			Date:        e.Date,
			Category:    e.Category,
			Amount:      core.FormatAmount(e.Amount),
			Description: e.Description,
		})
	}
	return rows
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		logger.WarnContext(r.Context(), "Parse body error",
			applog.FieldError, err,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		if parser.IsJSON() || wantsJSON(r) {
			writeJSONError(w, http.StatusBadRequest, "", "invalid request body")
			return
		}
		BadRequestError("Invalid request format").Write(w)
		return
	}
	asJSON := parser.IsJSON() || wantsJSON(r)

	exp, err := s.expenses.CreateExpense(r.Context(), parser.Input())
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			if asJSON {
				writeJSONError(w, http.StatusUnprocessableEntity, ve.Field, ve.Error())
				return
			}
			UnprocessableEntityError("Invalid "+ve.Field+": "+ve.Err.Error()).
				TriggerErrorNotification("Invalid " + ve.Field).
				Write(w)
			return
		}

		logger.ErrorContext(r.Context(), "Failed to save expense",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpCreate)
		if asJSON {
			writeJSONError(w, http.StatusInternalServerError, "", "error saving expense")
			return
		}
		InternalServerError("Error saving expense").Write(w)
		return
	}

	logger.InfoContext(r.Context(), "Expense created successfully",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithExpense(exp.ID, core.FormatAmount(exp.Amount), exp.Category, exp.Date).
			ToSlice()...)

	if asJSON {
		writeJSON(w, http.StatusCreated, toExpenseJSON(exp))
		return
	}

	msg := fmt.Sprintf("Expense saved (#%d): %s %s on %s",
		exp.ID, core.FormatAmount(exp.Amount), exp.Category, exp.Date)
	NewHTMXResponse().
		TriggerExpenseCreated(exp.ID, exp.Date).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	asJSON := wantsJSON(r)

	id, err := expenseIDParam(r)
	if err != nil {
		if asJSON {
			writeJSONError(w, http.StatusBadRequest, "id", err.Error())
			return
		}
		BadRequestError("Invalid expense id").Write(w)
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		logger.ErrorContext(r.Context(), "Failed to delete expense",
			applog.FieldError, err,
			applog.FieldExpenseID, id,
			applog.FieldOperation, applog.OpDelete)
		if asJSON {
			writeJSONError(w, http.StatusInternalServerError, "", "error deleting expense")
			return
		}
		InternalServerError("Error deleting expense").Write(w)
		return
	}

	logger.InfoContext(r.Context(), "Expense deleted",
		applog.FieldExpenseID, id,
		applog.FieldOperation, applog.OpDelete)

	if asJSON {
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
		return
	}

	// The empty body lets hx-swap="outerHTML" remove the row.
	NewHTMXResponse().
		TriggerExpenseDeleted(id).
		TriggerSuccessNotification(fmt.Sprintf("Expense #%d deleted", id)).
		BodyHTML("").
		Write(w)
}

// handleExpensesTable renders the expense list partial.
func (s *Server) handleExpensesTable(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	query := r.URL.Query()

	limit, err := parseLimit(query, s.listLimit)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	opts := storage.ListOptions{Range: parseDateRange(query), Limit: limit}

	items, err := s.expenses.ListExpenses(r.Context(), opts)
	if err != nil {
		if services.IsValidation(err) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		logger.ErrorContext(r.Context(), "List expenses error",
			applog.NewFields().
				WithError(err).
				WithOperation(applog.OpList).
				WithRange(opts.Range.Start, opts.Range.End).
				ToSlice()...)
		InternalServerError("Error loading expenses").Write(w)
		return
	}

	total := decimal.Zero
	for _, e := range items {
		total = total.Add(e.Amount)
	}

	data := struct {
		Rows      []expenseRow
		Count     int
		Total     string
		Limit     int
		Truncated bool
	}{
		Rows:      toExpenseRows(items),
		Count:     len(items),
		Total:     core.FormatAmount(total),
		Limit:     limit,
		Truncated: len(items) == limit,
	}
	s.render(w, r, "expenses_table.html", data)
}

// render executes a named template, falling back to a plain error fragment.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution error",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			"template", name)
	}
}
