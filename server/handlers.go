// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/pokecatch/config"
	"github.com/onnwee/pokecatch/game"
	"github.com/onnwee/pokecatch/oauth"
	"github.com/onnwee/pokecatch/outbound"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Deps carries the wired subsystems the handlers read from.
type Deps struct {
	DB     *sql.DB
	Cfg    *config.Config
	Engine *game.Engine
	Queue  *outbound.Queue
	Tokens *oauth.Manager

	// ChatState reports the connector phase for /status; nil when chat is
	// not running.
	ChatState func() string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps       Deps
	db         *sql.DB
	ctx        context.Context
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	return &Handlers{
		deps:       deps,
		db:         deps.DB,
		ctx:        ctx,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Refusing to add past the cap fails the OAuth flow, which beats
	// memory exhaustion.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}

// takeOAuthState validates and consumes a state token. Returns false when the
// state is unknown or expired.
func (h *Handlers) takeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return time.Now().Before(exp)
}
