package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyString("test").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Errorf("unexpected HX-Trigger %q", w.Header().Get("HX-Trigger"))
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerExpenseCreated(7, "2024-01-30").
		TriggerFormReset().
		TriggerSuccessNotification("Test message").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}

	expectedParts := []string{
		`"expense:created"`,
		`"form:reset"`,
		`"show-notification"`,
		`"id":7`,
		`"date":"2024-01-30"`,
		`"type":"success"`,
		`"duration":3000`,
	}
	for _, part := range expectedParts {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger missing %q: %s", part, trigger)
		}
	}
}

func TestHTMXResponseBuilder_ExpenseDeleted(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerExpenseDeleted(42).
		TriggerErrorNotification("nope").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"expense:deleted":{"id":42}`) {
		t.Errorf("Missing expense:deleted trigger: %s", trigger)
	}
	if !strings.Contains(trigger, `"duration":5000`) {
		t.Errorf("error notifications should stay longer: %s", trigger)
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		builder    *HTMXResponseBuilder
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bad request",
			builder:    BadRequestError("Invalid input"),
			wantStatus: http.StatusBadRequest,
			wantBody:   `<div class="error">Invalid input</div>`,
		},
		{
			name:       "unprocessable entity",
			builder:    UnprocessableEntityError("Validation failed"),
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `<div class="error">Validation failed</div>`,
		},
		{
			name:       "internal server error",
			builder:    InternalServerError("Something broke"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `<div class="error">Something broke</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestErrorResponse_EscapesHTML(t *testing.T) {
	w := httptest.NewRecorder()

	BadRequestError("<script>alert('xss')</script>").Write(w)

	body := w.Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("Error response did not escape HTML")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("Error response did not properly escape HTML entities")
	}
}

func TestNotificationTypes(t *testing.T) {
	tests := []struct {
		notifType NotificationType
		want      string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationWarning, "warning"},
		{NotificationInfo, "info"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		NewHTMXResponse().
			TriggerNotification(tt.notifType, "test", 1000).
			Write(w)

		trigger := w.Header().Get("HX-Trigger")
		if !strings.Contains(trigger, `"type":"`+tt.want+`"`) {
			t.Errorf("Notification type %q not found in trigger: %s", tt.want, trigger)
		}
	}
}
