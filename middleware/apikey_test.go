package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name         string
		apiKey       string
		required     bool
		path         string
		header       string
		expectedCode int
		expectedMode AuthMode
	}{
		{"Not required, no key", "secret", false, "/getLyrics", "", http.StatusOK, AuthNone},
		{"Not required, valid key", "secret", false, "/getLyrics", "secret", http.StatusOK, AuthAuthenticated},
		{"Not required, wrong key", "secret", false, "/getLyrics", "nope", http.StatusOK, AuthInvalid},
		{"Required, valid key", "secret", true, "/getLyrics", "secret", http.StatusOK, AuthAuthenticated},
		{"Required, no key", "secret", true, "/getLyrics", "", http.StatusOK, AuthCacheOnly},
		{"Required, wrong key", "secret", true, "/getLyrics", "nope", http.StatusUnauthorized, AuthNone},
		{"Required, public path", "secret", true, "/health", "", http.StatusOK, AuthNone},
		{"Required, public prefix", "secret", true, "/providers/list", "", http.StatusOK, AuthNone},
		{"Required, wrong key on public path", "secret", true, "/health", "nope", http.StatusOK, AuthInvalid},
		{"Required but unconfigured", "", true, "/getLyrics", "", http.StatusOK, AuthNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen AuthMode
			called := false
			handler := APIKeyMiddleware(tt.apiKey, tt.required, []string{"/health", "/providers*"})(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					called = true
					seen = AuthModeFrom(r.Context())
				}))

			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expectedCode {
				t.Errorf("Expected status %d, got %d", tt.expectedCode, rec.Code)
			}
			if tt.expectedCode == http.StatusOK && !called {
				t.Fatal("Expected the next handler to be called")
			}
			if seen != tt.expectedMode {
				t.Errorf("Expected auth mode %q, got %q", tt.expectedMode, seen)
			}
		})
	}
}
