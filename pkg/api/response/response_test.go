package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		data       any
		wantBody   string
	}{
		{name: "object", statusCode: http.StatusOK, data: map[string]any{"ok": true, "checked": 3}, wantBody: `{"checked":3,"ok":true}`},
		{name: "created", statusCode: http.StatusCreated, data: struct {
			ID string `json:"id"`
		}{ID: "c1"}, wantBody: `{"id":"c1"}`},
		{name: "no content", statusCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.statusCode, tt.data)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if tt.data == nil {
				if w.Body.Len() != 0 {
					t.Errorf("unexpected body %q", w.Body.String())
				}
				return
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
				t.Errorf("body = %s, want %s", got, tt.wantBody)
			}
		})
	}
}

func TestJSON_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusBadRequest, ErrCodeValidationFailed, "invalid", map[string]any{"field": "limit"}, "req-1")

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != ErrCodeValidationFailed || resp.Error.RequestID != "req-1" || resp.Error.Details["field"] != "limit" {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Title string `json:"title"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"hi"}`))
	if err := Decode(httptest.NewRecorder(), r, &v, 1024); err != nil || v.Title != "hi" {
		t.Fatalf("Decode() = %v, %+v", err, v)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"hi","extra":1}`))
	if err := Decode(httptest.NewRecorder(), r, &v, 1024); err == nil {
		t.Fatal("expected unknown field error")
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"`+strings.Repeat("x", 64)+`"}`))
	if err := Decode(httptest.NewRecorder(), r, &v, 16); err == nil {
		t.Fatal("expected size error")
	}
}

func TestErrorCodeFromStatus(t *testing.T) {
	tests := map[int]string{
		http.StatusUnauthorized: ErrCodeUnauthorized,
		http.StatusForbidden:    ErrCodeForbidden,
		http.StatusNotFound:     ErrCodeNotFound,
		http.StatusTeapot:       ErrCodeInternalServer,
	}
	for status, want := range tests {
		if got := ErrorCodeFromStatus(status); got != want {
			t.Errorf("ErrorCodeFromStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
