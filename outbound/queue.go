// Package outbound delivers chat messages through the rate-limited send API.
// All sends funnel through one Queue so spacing and retry policy hold globally
// no matter how many producers (scheduler, command replies) are enqueueing.
package outbound

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/pokecatch/db"
	"github.com/onnwee/pokecatch/telemetry"
	"github.com/onnwee/pokecatch/twitchapi"
)

// maxMessageLen is the chat API's message length ceiling.
const maxMessageLen = 500

const (
	minServerDelay = time.Second
	maxServerDelay = 30 * time.Second
)

// TokenSource provides bearer tokens and forces refreshes after auth failures.
// oauth.Manager satisfies it.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// RouteFunc resolves the delivery route (broadcaster id, sender id). Called
// once per delivery so a late-resolved route heals without a restart.
type RouteFunc func(ctx context.Context) (broadcasterID, senderID string, err error)

// Queue is a bounded FIFO with a single drain goroutine. Enqueue never
// blocks: when the buffer is full the message is dropped and counted.
type Queue struct {
	helix    *twitchapi.HelixClient
	tokens   TokenSource
	dbx      *sql.DB
	route    RouteFunc
	spacing  time.Duration
	attempts int

	ch       chan string
	lastSend atomic.Int64 // unix nanos of the last external send attempt
	running  atomic.Bool
}

// NewQueue wires a delivery queue. spacing is the minimum gap between any two
// external send attempts; attempts is per message before it is dropped.
func NewQueue(helix *twitchapi.HelixClient, tokens TokenSource, dbx *sql.DB, route RouteFunc, spacing time.Duration, attempts, capacity int) *Queue {
	if spacing <= 0 {
		spacing = 1200 * time.Millisecond
	}
	if attempts <= 0 {
		attempts = 3
	}
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		helix:    helix,
		tokens:   tokens,
		dbx:      dbx,
		route:    route,
		spacing:  spacing,
		attempts: attempts,
		ch:       make(chan string, capacity),
	}
}

// Enqueue queues a message for delivery, truncating to the API limit. Returns
// false when the buffer is full and the message was dropped.
func (q *Queue) Enqueue(text string) bool {
	if text == "" {
		return false
	}
	if len(text) > maxMessageLen {
		// Back off to a rune boundary so the cut never leaves invalid UTF-8.
		cut := maxMessageLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	select {
	case q.ch <- text:
		telemetry.SetQueueDepth(len(q.ch))
		return true
	default:
		if telemetry.MessagesDropped != nil {
			telemetry.MessagesDropped.Inc()
		}
		slog.Warn("outbound queue full, dropping message", slog.Int("capacity", cap(q.ch)))
		return false
	}
}

// Depth reports the number of queued messages.
func (q *Queue) Depth() int { return len(q.ch) }

// Start runs the drain loop until ctx is done. Second starts are no-ops so
// the spacing guarantee can't be violated by double wiring.
func (q *Queue) Start(ctx context.Context) {
	if !q.running.CompareAndSwap(false, true) {
		slog.Warn("outbound queue already draining, ignoring second start")
		return
	}
	go func() {
		defer q.running.Store(false)
		for {
			select {
			case <-ctx.Done():
				slog.Info("outbound queue stopped", slog.Int("undelivered", len(q.ch)))
				return
			case msg := <-q.ch:
				telemetry.SetQueueDepth(len(q.ch))
				db.Heartbeat(ctx, q.dbx, "outbound")
				q.deliver(ctx, msg)
			}
		}
	}()
}

// deliver pushes one message through the retry policy: up to q.attempts sends,
// rate-limit delays honored (clamped to [1s, 30s]), auth failures answered
// with a forced token refresh, anything else backed off exponentially.
func (q *Queue) deliver(ctx context.Context, msg string) {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         maxServerDelay,
	}
	policy.Reset()

	for attempt := 1; attempt <= q.attempts; attempt++ {
		if !q.waitSpacing(ctx) {
			return
		}
		err := q.sendOnce(ctx, msg)
		if err == nil {
			if telemetry.MessagesSent != nil {
				telemetry.MessagesSent.Inc()
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		var rl *twitchapi.RateLimitedError
		switch {
		case errors.As(err, &rl):
			if telemetry.SendRateLimited != nil {
				telemetry.SendRateLimited.Inc()
			}
			delay := rl.RetryAfter
			if delay < minServerDelay {
				delay = minServerDelay
			}
			if delay > maxServerDelay {
				delay = maxServerDelay
			}
			slog.Warn("send rate limited", slog.Duration("delay", delay), slog.Int("attempt", attempt))
			if !sleepCtx(ctx, delay) {
				return
			}
		case errors.Is(err, twitchapi.ErrUnauthorized):
			slog.Warn("send unauthorized, forcing token refresh", slog.Int("attempt", attempt))
			if _, rerr := q.tokens.Refresh(ctx); rerr != nil {
				slog.Error("token refresh after 401 failed", slog.Any("err", rerr))
				if !sleepCtx(ctx, policy.NextBackOff()) {
					return
				}
			}
		default:
			delay := policy.NextBackOff()
			slog.Warn("send failed", slog.Any("err", err), slog.Duration("delay", delay), slog.Int("attempt", attempt))
			if !sleepCtx(ctx, delay) {
				return
			}
		}
	}

	if telemetry.MessagesDropped != nil {
		telemetry.MessagesDropped.Inc()
	}
	slog.Error("message dropped after exhausting attempts", slog.Int("attempts", q.attempts))
}

// sendOnce performs exactly one external send attempt and stamps it for the
// spacing clock, success or not.
func (q *Queue) sendOnce(ctx context.Context, msg string) error {
	broadcasterID, senderID, err := q.route(ctx)
	if err != nil {
		return err
	}
	token, err := q.tokens.GetValidToken(ctx)
	if err != nil {
		return err
	}

	q.lastSend.Store(time.Now().UnixNano())
	start := time.Now()
	err = q.helix.SendChatMessage(ctx, token, broadcasterID, senderID, msg)
	if telemetry.SendDuration != nil {
		telemetry.SendDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

// waitSpacing blocks until the minimum gap since the last send has elapsed.
// Returns false when ctx ended first.
func (q *Queue) waitSpacing(ctx context.Context) bool {
	last := q.lastSend.Load()
	if last == 0 {
		return true
	}
	elapsed := time.Since(time.Unix(0, last))
	if elapsed >= q.spacing {
		return true
	}
	return sleepCtx(ctx, q.spacing-elapsed)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
