package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func withTokenEndpoint(t *testing.T, url string) {
	t.Helper()
	old := tokenEndpoint
	tokenEndpoint = url
	t.Cleanup(func() { tokenEndpoint = old })
}

func TestRefreshTokenSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.Form.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q, want old-refresh", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(RefreshResult{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresIn:    3600,
		})
	}))
	defer server.Close()
	withTokenEndpoint(t, server.URL)

	res, err := RefreshToken(context.Background(), "cid", "secret", "old-refresh")
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if res.AccessToken != "new-access" || res.RefreshToken != "new-refresh" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRefreshTokenUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":401,"message":"Invalid refresh token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()
	withTokenEndpoint(t, server.URL)

	_, err := RefreshToken(context.Background(), "cid", "secret", "revoked")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRefreshTokenMissingParams(t *testing.T) {
	if _, err := RefreshToken(context.Background(), "", "secret", "rt"); err == nil {
		t.Error("expected error for missing client id")
	}
	if _, err := RefreshToken(context.Background(), "cid", "secret", ""); err == nil {
		t.Error("expected error for missing refresh token")
	}
}

func TestRefreshTokenEmptyAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"expires_in": 3600})
	}))
	defer server.Close()
	withTokenEndpoint(t, server.URL)

	if _, err := RefreshToken(context.Background(), "cid", "secret", "rt"); err == nil {
		t.Error("expected error for empty access_token in response")
	}
}

func TestComputeExpiry(t *testing.T) {
	exp := ComputeExpiry(3600)
	if d := time.Until(exp); d < 59*time.Minute || d > 61*time.Minute {
		t.Errorf("expiry %v not ~1h out", d)
	}
	// unknown lifetime defaults to +60m
	exp = ComputeExpiry(0)
	if d := time.Until(exp); d < 59*time.Minute || d > 61*time.Minute {
		t.Errorf("default expiry %v not ~1h out", d)
	}
}
