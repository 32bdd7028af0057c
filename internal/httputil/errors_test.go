package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, "req_123", http.StatusBadRequest, "invalid_request_error", "bad_request", "test message")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	if rid := w.Header().Get("X-Request-ID"); rid != "req_123" {
		t.Errorf("expected X-Request-ID req_123, got %s", rid)
	}

	var resp APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.Error.Message != "test message" {
		t.Errorf("expected message 'test message', got %q", resp.Error.Message)
	}
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("expected type 'invalid_request_error', got %q", resp.Error.Type)
	}
	if resp.Error.RequestID != "req_123" {
		t.Errorf("expected request_id 'req_123', got %q", resp.Error.RequestID)
	}
}

func TestWriteNotFoundError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNotFoundError(w, "req_456", "No such model")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "model_not_found" {
		t.Errorf("expected code 'model_not_found', got %q", resp.Error.Code)
	}
}

func TestWriteInferenceError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInferenceError(w, "req_789", "rate limited", true)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 for transient, got %d", w.Code)
	}
	var resp APIError
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Error.Retryable {
		t.Error("transient inference error should be marked retryable")
	}

	w = httptest.NewRecorder()
	WriteInferenceError(w, "req_789", "bad deployment", false)
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502 for fatal, got %d", w.Code)
	}
	resp = APIError{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Retryable {
		t.Error("fatal inference error must not be marked retryable")
	}
}
