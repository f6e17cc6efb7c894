package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"expensetracker/internal/core"
)

// maxWindowDays caps ?days at roughly a century.
const maxWindowDays = 36500

var (
	errInvalidLimit = errors.New("limit must be a positive integer")
	errInvalidDays  = errors.New("days must be between 1 and 36500")
	errInvalidID    = errors.New("invalid expense id")
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// parseDateRange reads the optional start/end query parameters.
func parseDateRange(query url.Values) core.DateRange {
	return core.DateRange{
		Start: sanitizeInput(query.Get("start")),
		End:   sanitizeInput(query.Get("end")),
	}
}

// parseLimit reads the limit query parameter, falling back to def when absent.
func parseLimit(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errInvalidLimit
	}
	return n, nil
}

// parseDays reads the days query parameter. Zero means "use the default".
func parseDays(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("days"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > maxWindowDays {
		return 0, errInvalidDays
	}
	return n, nil
}

// expenseIDParam extracts the {id} route parameter.
func expenseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

type jsonAPIKey struct{}

// jsonAPI marks every request under a route group as a JSON API call.
func jsonAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), jsonAPIKey{}, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// wantsJSON reports whether the caller asked for a JSON response rather than
// an HTMX fragment. Requests routed through jsonAPI always get JSON.
func wantsJSON(r *http.Request) bool {
	if api, _ := r.Context().Value(jsonAPIKey{}).(bool); api {
		return true
	}
	if r.Header.Get("HX-Request") != "" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, field, message string) {
	body := map[string]string{"error": message}
	if field != "" {
		body["field"] = field
	}
	writeJSON(w, status, body)
}
