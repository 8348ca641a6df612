// Package oauth owns the lifecycle of the bot's user credential: it persists the
// access/refresh token pair in the oauth_tokens table, hands out a valid access
// token on demand, and proactively refreshes it on a jittered schedule.
package oauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/pokecatch/db"
	"github.com/onnwee/pokecatch/telemetry"
	"github.com/onnwee/pokecatch/twitchapi"
)

// ErrNoCredential means no token has been stored yet; the OAuth authorization
// flow (/auth/twitch/start) has to run before the bot can send messages.
var ErrNoCredential = errors.New("oauth: no stored credential")

// expiryMargin is how close to expiry a token may get before we refresh it.
const expiryMargin = 60 * time.Second

// refreshFunc performs the provider refresh grant. Swappable in tests.
type refreshFunc func(ctx context.Context, clientID, clientSecret, refreshToken string) (*twitchapi.RefreshResult, error)

// Manager is the credential lifecycle manager for one provider row.
type Manager struct {
	DB           *sql.DB
	ClientID     string
	ClientSecret string
	Provider     string

	mu      sync.Mutex // serializes refresh grants
	refresh refreshFunc
}

// NewManager builds a Manager for the "twitch" provider row.
func NewManager(database *sql.DB, clientID, clientSecret string) *Manager {
	return &Manager{
		DB:           database,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Provider:     "twitch",
		refresh:      twitchapi.RefreshToken,
	}
}

// GetValidToken returns an access token usable for an outbound call right now.
// A token with no known expiry forces a refresh. A token inside the expiry
// margin triggers a refresh, but if that refresh call fails the still-valid
// existing token is returned instead (availability over strict freshness).
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	access, refreshTok, expiry, _, err := db.GetOAuthToken(ctx, m.DB, m.Provider)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if access == "" && refreshTok == "" {
		return "", ErrNoCredential
	}
	if access == "" || expiry.IsZero() {
		return m.Refresh(ctx)
	}
	remaining := time.Until(expiry)
	if remaining > expiryMargin {
		return access, nil
	}
	newAccess, err := m.Refresh(ctx)
	if err != nil {
		if remaining > 0 {
			slog.Warn("credential refresh failed, falling back to unexpired token",
				slog.String("provider", m.Provider), slog.Duration("remaining", remaining), slog.Any("err", err))
			return access, nil
		}
		return "", err
	}
	return newAccess, nil
}

// Refresh performs the refresh grant unconditionally and persists the resulting
// access/refresh/expiry triple. Returns the new access token.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, refreshTok, _, scope, err := db.GetOAuthToken(ctx, m.DB, m.Provider)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if refreshTok == "" {
		return "", ErrNoCredential
	}
	res, err := m.refresh(ctx, m.ClientID, m.ClientSecret, refreshTok)
	if err != nil {
		if telemetry.TokenRefreshErrs != nil {
			telemetry.TokenRefreshErrs.Inc()
		}
		return "", fmt.Errorf("refresh grant: %w", err)
	}
	newRefresh := res.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshTok
	}
	newScope := strings.Join(res.Scope, " ")
	if newScope == "" {
		newScope = scope
	}
	expiry := twitchapi.ComputeExpiry(res.ExpiresIn)
	if err := db.UpsertOAuthToken(ctx, m.DB, m.Provider, res.AccessToken, newRefresh, expiry, newScope); err != nil {
		return "", fmt.Errorf("persist credential: %w", err)
	}
	if telemetry.TokenRefreshes != nil {
		telemetry.TokenRefreshes.Inc()
	}
	slog.Info("token refreshed", slog.String("provider", m.Provider), slog.Time("expires_at", expiry))
	return res.AccessToken, nil
}

// StoreInitial persists the credential produced by the OAuth authorization-code
// callback, replacing whatever was stored before.
func (m *Manager) StoreInitial(ctx context.Context, accessToken, refreshToken string, expiresInSeconds int, scope string) error {
	if accessToken == "" || refreshToken == "" {
		return errors.New("oauth: empty token in initial credential")
	}
	expiry := twitchapi.ComputeExpiry(expiresInSeconds)
	if err := db.UpsertOAuthToken(ctx, m.DB, m.Provider, accessToken, refreshToken, expiry, scope); err != nil {
		return fmt.Errorf("persist initial credential: %w", err)
	}
	slog.Info("initial credential stored", slog.String("provider", m.Provider), slog.Time("expires_at", expiry))
	return nil
}

// StartRefresher launches a goroutine that periodically calls GetValidToken so
// the token is usually refreshed before any send has to wait for it. Failures
// are logged, never fatal.
func (m *Manager) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
			ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
			_, err := m.GetValidToken(ctx2)
			cancel()
			if err != nil && !errors.Is(err, ErrNoCredential) {
				slog.Warn("periodic credential check failed", slog.String("provider", m.Provider), slog.Any("err", err))
			}
		}
	}()
}
