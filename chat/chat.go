// Package chat ingests live channel messages and hands them to the game.
//
// Two transports implement the same contract: the EventSub websocket connector
// (default) and a legacy IRC connector kept for channels where the websocket
// feed is unavailable. Both reconnect forever with capped exponential backoff
// and never let a handler panic take the connection down.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// MessageHandler receives one inbound chat message. Implementations must be
// safe for concurrent use; the connector calls it from its read loop.
type MessageHandler func(ctx context.Context, username, text string)

// Connector is a chat transport. Start blocks until Stop is called or the
// context is cancelled, reconnecting internally on failure.
type Connector interface {
	Start(ctx context.Context) error
	Stop()
}

// State is the connector lifecycle phase, exported for /status reporting.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
)

// reconnectPolicy is the shared backoff shape for both transports: 1s initial,
// doubling, 30s cap, jittered. Reset after every successful subscribe so a
// stable connection that later drops starts over from 1s.
func reconnectPolicy() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
	}
	b.Reset()
	return b
}

// safeHandle invokes the handler with a recover guard. A panicking command
// handler loses one message, not the connection.
func safeHandle(ctx context.Context, h MessageHandler, username, text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("chat handler panicked", slog.Any("panic", r), slog.String("username", username))
		}
	}()
	h(ctx, username, text)
}
