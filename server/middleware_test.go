package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthDisabledPassesThrough(t *testing.T) {
	cfg := &authConfig{enabled: false}
	h := adminAuth(okHandler(), cfg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/spawn", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth disabled", rec.Code)
	}
}

func TestAdminAuthToken(t *testing.T) {
	cfg := &authConfig{adminToken: "sekrit", enabled: true}
	h := adminAuth(okHandler(), cfg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/spawn", nil)
	req.Header.Set("X-Admin-Token", "sekrit")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/spawn", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
}

func TestAdminAuthBasic(t *testing.T) {
	cfg := &authConfig{adminUsername: "admin", adminPassword: "pw", enabled: true}
	h := adminAuth(okHandler(), cfg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/spawn", nil)
	req.SetBasicAuth("admin", "pw")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid basic auth: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/spawn", nil)
	req.SetBasicAuth("admin", "nope")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad basic auth: status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 should carry WWW-Authenticate")
	}
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{
		enabled:       true,
		requestsPerIP: 3,
		window:        time.Minute,
	})

	for i := 0; i < 3; i++ {
		if !limiter.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("1.2.3.4") {
		t.Error("4th request in the window should be blocked")
	}
	if !limiter.allow("5.6.7.8") {
		t.Error("a different IP must have its own budget")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: false, requestsPerIP: 1, window: time.Minute})
	for i := 0; i < 10; i++ {
		if !limiter.allow("1.2.3.4") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := withCORSConfig(okHandler(), &corsConfig{permissive: true})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/leaderboard", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("permissive CORS should allow all origins")
	}
}

func TestCORSRestrictedOrigin(t *testing.T) {
	h := withCORSConfig(okHandler(), &corsConfig{
		permissive:     false,
		allowedOrigins: []string{"https://game.example.com", "*.example.org"},
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	req.Header.Set("Origin", "https://game.example.com")
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://game.example.com" {
		t.Error("allowed origin should be echoed")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin must not be allowed")
	}
}
