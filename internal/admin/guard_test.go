package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGuardAuthorize(t *testing.T) {
	g := NewGuard("workshop-secret")

	if !g.Authorize("workshop-secret") {
		t.Error("correct password rejected")
	}
	if g.Authorize("wrong") {
		t.Error("wrong password accepted")
	}
	if g.Authorize("") {
		t.Error("empty password accepted")
	}
}

func TestGuardUnconfigured(t *testing.T) {
	g := NewGuard("")
	if g.Configured() {
		t.Error("empty password must leave the guard unconfigured")
	}
	if g.Authorize("") {
		t.Error("unconfigured guard must reject everything, even empty input")
	}
}

func TestMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		password   string
		authHeader string
		wantStatus int
	}{
		{"valid", "secret", "Bearer secret", http.StatusNoContent},
		{"wrong password", "secret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"not bearer", "secret", "Basic abc", http.StatusUnauthorized},
		{"empty token", "secret", "Bearer ", http.StatusUnauthorized},
		{"unconfigured guard", "", "Bearer anything", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(NewGuard(tt.password))(next)
			req := httptest.NewRequest(http.MethodGet, "/admin/v1/models", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
