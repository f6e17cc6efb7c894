package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

var fixedNow = time.Date(2024, 1, 31, 10, 0, 0, 0, time.Local)

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("database is locked") }

func newTestServer(t *testing.T, opts Options) (*Server, *storage.ExpenseStore) {
	t.Helper()
	clock := func() time.Time { return fixedNow }

	store, err := storage.Open(filepath.Join(t.TempDir(), "expenses.db"), storage.WithClock(clock))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := services.NewExpenseService(store, 30)
	svc.SetClock(clock)

	opts.Clock = clock
	srv := NewServer(":0", svc, store, opts)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = svc.Close()
	})
	return srv, store
}

func do(t *testing.T, srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func postForm(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, srv, http.MethodPost, "/expenses", body, map[string]string{"HX-Request": "true"})
}

func seedScenario(t *testing.T, srv *Server) {
	t.Helper()
	for _, body := range []string{
		"amount=12.50&category=Food&date=2024-01-30&description=lunch",
		"amount=20&category=Food&date=2024-01-31",
		"amount=5&category=Transport&date=2024-01-31&description=bus",
	} {
		if rr := postForm(t, srv, body); rr.Code != http.StatusOK {
			t.Fatalf("seed %q: status=%d body=%s", body, rr.Code, rr.Body.String())
		}
	}
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Add Expense", `<option value="Food"`, `value="2024-01-31"`, "/ui/charts?days=30", `hx-include=".filters"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("security headers not applied")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("request id header not set")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr = do(t, srv, http.MethodGet, "/readyz", "", nil)
	var ready struct {
		Status string                 `json:"status"`
		Checks map[string]interface{} `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&ready); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if ready.Status != "ready" || ready.Checks["database"] != "ok" {
		t.Errorf("unexpected readiness %+v", ready)
	}
}

func TestReadyzReportsDatabaseFailure(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	srv.pinger = failingPinger{}

	rr := do(t, srv, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "database is locked") {
		t.Errorf("failure reason missing: %s", rr.Body.String())
	}
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/static/app.css", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("static status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}

func TestCreateExpenseValidationAndSuccess(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	// Wrong method
	rr := do(t, srv, http.MethodGet, "/expenses", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid amount", body: "amount=abc&category=Food", want: "amount"},
		{name: "zero amount", body: "amount=0&category=Food", want: "amount"},
		{name: "negative amount", body: "amount=-4&category=Food", want: "amount"},
		{name: "bad date", body: "amount=3&category=Food&date=2024-13-01", want: "date"},
		{name: "missing category", body: "amount=3&category=", want: "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postForm(t, srv, tt.body)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), `class="error"`) || !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("unexpected body %s", rr.Body.String())
			}
		})
	}

	// Success
	rr = postForm(t, srv, "amount=12,50&category=Food&date=2024-01-30&description=lunch")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "success") || !strings.Contains(rr.Body.String(), "12.50") {
		t.Fatalf("expected success in body: %s", rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	for _, part := range []string{`"expense:created"`, `"form:reset"`, `"show-notification"`, `"date":"2024-01-30"`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %s: %s", part, trigger)
		}
	}
}

func TestCreateExpenseJSON(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/expenses",
		strings.NewReader(`{"amount": 12.5, "category": "Food", "description": "lunch"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var got expenseJSON
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 1 || got.Amount != "12.50" || got.Category != "Food" || got.Date != "2024-01-31" || got.Description != "lunch" {
		t.Errorf("unexpected expense %+v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(`{"amount": "5", "category": "  "}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var apiErr map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if apiErr["field"] != "category" {
		t.Errorf("field = %q", apiErr["field"])
	}

	req = httptest.NewRequest(http.MethodPost, "/api/expenses", strings.NewReader(`{"amount": `))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rr.Code)
	}
}

func TestDeleteExpense(t *testing.T) {
	srv, store := newTestServer(t, Options{})
	seedScenario(t, srv)

	rr := do(t, srv, http.MethodDelete, "/expenses/3", "", map[string]string{"HX-Request": "true"})
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"expense:deleted"`) {
		t.Errorf("HX-Trigger = %s", rr.Header().Get("HX-Trigger"))
	}

	// Deleting again is not an error.
	rr = do(t, srv, http.MethodDelete, "/expenses/3", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("repeat delete status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/expenses/1/delete", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("post delete status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodDelete, "/expenses/abc", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rr.Code)
	}

	items, err := store.List(context.Background(), storage.ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != 2 {
		t.Errorf("unexpected remaining expenses %+v", items)
	}
}

func TestAPIMutationsAnswerJSON(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	seedScenario(t, srv)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"delete without headers", http.MethodDelete, "/api/expenses/1", "", http.StatusOK, `{"deleted":1}`},
		{"delete bad id", http.MethodDelete, "/api/expenses/abc", "", http.StatusBadRequest, `"field":"id"`},
		{"create from form body", http.MethodPost, "/api/expenses", "amount=3&category=Food&date=2024-01-31", http.StatusCreated, `"amount":"3.00"`},
		{"create invalid form body", http.MethodPost, "/api/expenses", "amount=-1&category=Food", http.StatusUnprocessableEntity, `"field":"amount"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body, nil)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q", ct)
			}
			if rr.Header().Get("HX-Trigger") != "" {
				t.Errorf("unexpected HX-Trigger %q", rr.Header().Get("HX-Trigger"))
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestExpensesTablePartial(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/ui/expenses", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "No expenses found") {
		t.Fatalf("empty table: status=%d body=%s", rr.Code, rr.Body.String())
	}

	seedScenario(t, srv)

	rr = do(t, srv, http.MethodGet, "/ui/expenses", "", nil)
	body := rr.Body.String()
	if !strings.Contains(body, `id="expense-3"`) || !strings.Contains(body, "lunch") {
		t.Errorf("rows missing: %s", body)
	}
	if !strings.Contains(body, "37.50") {
		t.Errorf("total missing: %s", body)
	}
	// newest first
	if strings.Index(body, `id="expense-3"`) > strings.Index(body, `id="expense-1"`) {
		t.Errorf("rows not ordered newest first")
	}

	rr = do(t, srv, http.MethodGet, "/ui/expenses?start=2024-01-30&end=2024-01-30", "", nil)
	if strings.Contains(rr.Body.String(), `id="expense-2"`) || !strings.Contains(rr.Body.String(), `id="expense-1"`) {
		t.Errorf("range filter not applied: %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/ui/expenses?limit=1", "", nil)
	if strings.Count(rr.Body.String(), `<tr id="expense-`) != 1 {
		t.Errorf("limit not applied: %s", rr.Body.String())
	}

	for _, path := range []string{"/ui/expenses?limit=abc", "/ui/expenses?start=2024-02-01&end=2024-01-01", "/ui/expenses?start=yesterday"} {
		rr := do(t, srv, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", path, rr.Code)
		}
	}
}

func TestChartsPartial(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rr := do(t, srv, http.MethodGet, "/ui/charts", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("charts status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No data yet") || !strings.Contains(rr.Body.String(), "No daily data") {
		t.Errorf("empty states missing: %s", rr.Body.String())
	}

	seedScenario(t, srv)

	rr = do(t, srv, http.MethodGet, "/ui/charts?days=30", "", nil)
	body := rr.Body.String()
	for _, want := range []string{"Food", "32.50 (86.7%)", "Transport", "5.00 (13.3%)", "width: 100%", "width: 15%", "Total: 37.50", "01-30", "2024-01-31: 25.00", "height: 100%", "height: 50%"} {
		if !strings.Contains(body, want) {
			t.Errorf("charts body missing %q", want)
		}
	}

	rr = do(t, srv, http.MethodGet, "/ui/charts?days=0", "", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for days=0, got %d", rr.Code)
	}
}

func TestAPISummaries(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	seedScenario(t, srv)

	type totals struct {
		Start      string      `json:"start"`
		End        string      `json:"end"`
		Total      string      `json:"total"`
		Categories []totalJSON `json:"categories"`
		Days       []totalJSON `json:"days"`
	}
	get := func(path string) (int, totals) {
		rr := do(t, srv, http.MethodGet, path, "", nil)
		var out totals
		if rr.Code == http.StatusOK {
			if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
				t.Fatalf("decode %s: %v", path, err)
			}
		}
		return rr.Code, out
	}

	code, cats := get("/api/summary/categories")
	if code != http.StatusOK {
		t.Fatalf("categories status=%d", code)
	}
	if cats.Start != "2024-01-01" || cats.End != "2024-01-31" {
		t.Errorf("window = %s..%s", cats.Start, cats.End)
	}
	if len(cats.Categories) != 2 || cats.Categories[0] != (totalJSON{Key: "Food", Total: "32.50"}) || cats.Categories[1] != (totalJSON{Key: "Transport", Total: "5.00"}) {
		t.Errorf("categories = %+v", cats.Categories)
	}
	if cats.Total != "37.50" {
		t.Errorf("total = %s", cats.Total)
	}

	code, daily := get("/api/summary/daily?days=7")
	if code != http.StatusOK {
		t.Fatalf("daily status=%d", code)
	}
	want := []totalJSON{{Key: "2024-01-30", Total: "12.50"}, {Key: "2024-01-31", Total: "25.00"}}
	if len(daily.Days) != 2 || daily.Days[0] != want[0] || daily.Days[1] != want[1] {
		t.Errorf("daily = %+v", daily.Days)
	}

	_, daily = get("/api/summary/daily?start=2024-01-31&end=2024-01-31")
	if len(daily.Days) != 1 || daily.Days[0].Total != "25.00" {
		t.Errorf("explicit range daily = %+v", daily.Days)
	}

	if code, _ := get("/api/summary/daily?days=abc"); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for bad days, got %d", code)
	}
	for _, days := range []string{"36501", "9000000000000000000"} {
		rr := do(t, srv, http.MethodGet, "/api/summary/daily?days="+days, "", nil)
		if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), `"field":"days"`) {
			t.Errorf("days=%s: status=%d body=%s", days, rr.Code, rr.Body.String())
		}
	}
	if code, _ := get("/api/summary/categories?start=2024-02-01&end=2024-01-01"); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for inverted range, got %d", code)
	}
}

func TestAPIListExpenses(t *testing.T) {
	srv, _ := newTestServer(t, Options{ListLimit: 2})
	seedScenario(t, srv)

	rr := do(t, srv, http.MethodGet, "/api/expenses", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var out struct {
		Expenses []expenseJSON `json:"expenses"`
		Count    int           `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 || out.Expenses[0].ID != 3 || out.Expenses[1].ID != 2 {
		t.Errorf("unexpected list %+v", out)
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv, _ := newTestServer(t, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := postForm(t, srv, "amount=1&category=Food"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, rr.Code)
		}
	}
	rr := postForm(t, srv, "amount=1&category=Food")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}

	// Reads stay available.
	if rr := do(t, srv, http.MethodGet, "/ui/expenses", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("read after limit: status=%d", rr.Code)
	}
}

func TestBarSize(t *testing.T) {
	tests := []struct {
		value, peak string
		want        int
	}{
		{"32.5", "32.5", 100},
		{"5", "32.5", 15},
		{"0.1", "1000", 2},
		{"0", "10", 0},
		{"10", "0", 0},
	}
	for _, tt := range tests {
		got := barSize(mustDecimal(t, tt.value), mustDecimal(t, tt.peak))
		if got != tt.want {
			t.Errorf("barSize(%s, %s) = %d, want %d", tt.value, tt.peak, got, tt.want)
		}
	}

	if got := sharePercent(mustDecimal(t, "1"), mustDecimal(t, "3")); got != "33.3%" {
		t.Errorf("sharePercent = %s", got)
	}
	if got := sharePercent(mustDecimal(t, "1"), mustDecimal(t, "0")); got != "0.0%" {
		t.Errorf("sharePercent with zero total = %s", got)
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}
