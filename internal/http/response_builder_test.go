package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"finance/internal/core"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return out
}

func TestJSONResponseBuilder_Success(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().
		Data(map[string]int{"id": 3}).
		Header("X-Custom", "value").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Error("custom header missing")
	}
	body := decode(t, w)
	if body["success"] != true || body["data"].(map[string]any)["id"] != float64(3) {
		t.Errorf("body = %v", body)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		status  int
		message string
	}{
		{"bad request", BadRequestError("nope"), http.StatusBadRequest, "nope"},
		{"internal", InternalServerError(), http.StatusInternalServerError, msgInternal},
		{"rate limited", TooManyRequestsError(), http.StatusTooManyRequests, msgRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := decode(t, w)
			if body["success"] != false || body["error"] != tt.message {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestValidationMessage(t *testing.T) {
	wrapped := fmt.Errorf("create expense: %w", core.ErrNonPositiveAmount)
	if msg, ok := validationMessage(wrapped); !ok || msg != core.ErrNonPositiveAmount.Message {
		t.Errorf("wrapped validation error = %q %v", msg, ok)
	}
	if _, ok := validationMessage(errors.New("database is locked")); ok {
		t.Error("plain errors are not validation errors")
	}
	if _, ok := validationMessage(fmt.Errorf("get: %w", core.ErrNotFound)); ok {
		t.Error("not found is not a validation error")
	}
}

func TestRecordJSON(t *testing.T) {
	rec := core.Record{
		ID:       9,
		Kind:     core.KindExpense,
		Date:     core.NewDate(2024, 3, 5),
		Category: "food",
		Amount:   core.Money{Cents: 1250},
		Details:  &core.ExpenseDetails{Mood: "ok"},
	}
	raw, err := json.Marshal(toRecordJSON(rec))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":9,"type":"expense","date":"2024-03-05","category":"food","description":null,"amount":12.5,` +
		`"payment_method":null,"tags":null,"mood":"ok","need_or_want":null}`
	if string(raw) != want {
		t.Errorf("json = %s\nwant   %s", raw, want)
	}

	rec.Kind, rec.Details = core.KindIncome, nil
	raw, _ = json.Marshal(toRecordJSON(rec))
	if string(raw) != `{"id":9,"type":"income","date":"2024-03-05","category":"food","description":null,"amount":12.5}` {
		t.Errorf("income json = %s", raw)
	}
}
