package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// oauth2Config builds the authorization-code flow config from the loaded
// service configuration.
func (h *Handlers) oauth2Config() *oauth2.Config {
	cfg := h.deps.Cfg
	if cfg == nil {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RedirectURL:  cfg.TwitchRedirectURI,
		Scopes:       strings.Fields(cfg.TwitchScopes),
		Endpoint:     twitch.Endpoint,
	}
}

// HandleTwitchOAuthStart initiates the OAuth flow by redirecting to Twitch.
func (h *Handlers) HandleTwitchOAuthStart(w http.ResponseWriter, r *http.Request) {
	oc := h.oauth2Config()
	if oc == nil || oc.ClientID == "" || oc.RedirectURL == "" {
		http.Error(w, "oauth not configured (need TWITCH_CLIENT_ID + TWITCH_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	// generate state
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, oc.AuthCodeURL(st), http.StatusFound)
}

// HandleTwitchOAuthCallback exchanges the auth code and stores the credential.
func (h *Handlers) HandleTwitchOAuthCallback(w http.ResponseWriter, r *http.Request) {
	oc := h.oauth2Config()
	if oc == nil {
		http.Error(w, "oauth not configured", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	if !h.takeOAuthState(st) {
		http.Error(w, "invalid state", 400)
		return
	}
	ctx := r.Context()
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	expiresIn := int(time.Until(tok.Expiry).Seconds())
	scope := strings.Join(oc.Scopes, " ")
	if err := h.deps.Tokens.StoreInitial(ctx, tok.AccessToken, tok.RefreshToken, expiresIn, scope); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "scopes": oc.Scopes, "expires_in": expiresIn}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
