package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestIPRateLimiter_Limiter(t *testing.T) {
	rl := NewIPRateLimiter(1, 5, 10, 20)

	a := rl.Limiter("192.168.1.1")
	if a == nil || a.Normal == nil || a.Cached == nil {
		t.Fatalf("Expected a limiter pair, got %+v", a)
	}
	if b := rl.Limiter("192.168.1.1"); b != a {
		t.Error("Expected the same pair for the same IP")
	}
	rl.Limiter("192.168.1.2")
	if rl.Len() != 2 {
		t.Errorf("Expected 2 tracked clients, got %d", rl.Len())
	}
	if rl.NormalLimit() != 5 || rl.CachedLimit() != 20 {
		t.Errorf("Unexpected limits %d/%d", rl.NormalLimit(), rl.CachedLimit())
	}
}

func TestIPRateLimiter_TwoTiers(t *testing.T) {
	rl := NewIPRateLimiter(rate.Limit(1), 1, rate.Limit(1), 2)
	pair := rl.Limiter("10.0.0.1")

	if !pair.Normal.Allow() {
		t.Fatal("Expected the first request on the normal tier")
	}
	if pair.Normal.Allow() {
		t.Fatal("Expected the normal tier to be exhausted")
	}
	for i := 0; i < 2; i++ {
		if !pair.Cached.Allow() {
			t.Fatalf("Expected cached request %d to be allowed", i+1)
		}
	}
	if pair.Cached.Allow() {
		t.Error("Expected the cached tier to be exhausted")
	}
	if pair.NormalTokens() != 0 || pair.CachedTokens() != 0 {
		t.Errorf("Expected no tokens left, got %d/%d", pair.NormalTokens(), pair.CachedTokens())
	}
}

func TestIPRateLimiter_Evict(t *testing.T) {
	rl := NewIPRateLimiter(1, 1, 1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Limiter("old")
	now = now.Add(10 * time.Minute)
	rl.Limiter("recent")
	now = now.Add(time.Minute)

	if n := rl.Evict(5 * time.Minute); n != 1 {
		t.Errorf("Expected 1 eviction, got %d", n)
	}
	if rl.Len() != 1 {
		t.Errorf("Expected 1 client left, got %d", rl.Len())
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:53211"
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Errorf("Expected the host part, got %q", got)
	}
	r.RemoteAddr = "unix"
	if got := ClientIP(r); got != "unix" {
		t.Errorf("Expected the raw address, got %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	var tiers []string
	handler := RateLimit(NewIPRateLimiter(rate.Limit(0.001), 1, rate.Limit(0.001), 1), "secret")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tiers = append(tiers, TierFrom(r.Context()))
		}))

	serve := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/getLyrics", nil)
		req.RemoteAddr = "198.51.100.1:1234"
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	tests := []struct {
		name         string
		key          string
		expectedCode int
		expectedType string
	}{
		{"Normal tier", "", http.StatusOK, TierNormal},
		{"Cached tier", "", http.StatusOK, TierCached},
		{"Exceeded", "", http.StatusTooManyRequests, TierExceeded},
		{"Bypass", "secret", http.StatusOK, ""},
		{"Wrong key is limited", "wrong", http.StatusTooManyRequests, TierExceeded},
	}

	for _, tt := range tests {
		rec := serve(tt.key)
		if rec.Code != tt.expectedCode {
			t.Errorf("%s: expected status %d, got %d", tt.name, tt.expectedCode, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Type"); got != tt.expectedType {
			t.Errorf("%s: expected X-RateLimit-Type %q, got %q", tt.name, tt.expectedType, got)
		}
	}

	expected := []string{TierNormal, TierCached, TierBypass}
	if len(tiers) != len(expected) {
		t.Fatalf("Expected tiers %v, got %v", expected, tiers)
	}
	for i := range expected {
		if tiers[i] != expected[i] {
			t.Errorf("Expected tiers %v, got %v", expected, tiers)
			break
		}
	}
}
