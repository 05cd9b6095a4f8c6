package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func issue(t *testing.T, secret []byte, scopes ...string) string {
	t.Helper()
	token, err := Issue(secret, Claims{ClientID: "phone", Scopes: scopes}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestRequire(t *testing.T) {
	secret := []byte("test-secret")
	remote := issue(t, secret, ScopeRemote)
	readOnly := issue(t, secret, ScopeRead)

	tests := []struct {
		name     string
		path     string
		header   string
		upgrade  bool
		wantCode int
	}{
		{"bearer with scope", "/api/v1/remote/play", "Bearer " + remote, false, http.StatusOK},
		{"missing token", "/api/v1/remote/play", "", false, http.StatusUnauthorized},
		{"garbage token", "/api/v1/remote/play", "Bearer nope", false, http.StatusUnauthorized},
		{"wrong scope", "/api/v1/remote/play", "Bearer " + readOnly, false, http.StatusForbidden},
		{"query token outside websocket", "/api/v1/remote/play?token=" + remote, "", false, http.StatusUnauthorized},
		{"query token on websocket upgrade", WebsocketPath + "?token=" + remote, "", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, ok := ClaimsFromContext(r.Context())
				if !ok || claims.ClientID != "phone" {
					t.Fatalf("expected claims in context")
				}
				if got := ClientID(r.Context()); got != "phone" {
					t.Fatalf("ClientID = %q, want phone", got)
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rr := httptest.NewRecorder()

			Require(secret, ScopeRemote)(next).ServeHTTP(rr, req)
			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d body=%s", tt.wantCode, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRequire_OpenWithoutSecret(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if got := ClientID(r.Context()); got != "" {
			t.Errorf("ClientID = %q on an open API", got)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	Require(nil, ScopeRemote)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/remote/play", nil))
	if !called || rr.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rr.Code)
	}
}
