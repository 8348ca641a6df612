package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/pokecatch/db"
	"github.com/onnwee/pokecatch/oauth"
	"github.com/onnwee/pokecatch/telemetry"
	"github.com/onnwee/pokecatch/twitchapi"
)

const (
	defaultWSURL     = "wss://eventsub.wss.twitch.tv/ws"
	handshakeTimeout = 10 * time.Second
	// Read deadline slack on top of the server's advertised keepalive interval.
	keepaliveSlack = 15 * time.Second
)

const (
	kvBroadcasterID = "cfg:broadcaster_id"
	kvBotUserID     = "cfg:bot_user_id"
)

// errReconnectRequested signals a server-initiated session migration; the
// loop redials the provided URL without counting it as a failure.
type errReconnectRequested struct{ url string }

func (e *errReconnectRequested) Error() string { return "eventsub session reconnect requested" }

// EventSubConnector ingests chat over the EventSub websocket feed. It resolves
// the broadcaster and bot user ids once (cached in the kv table), then holds a
// subscription to channel.chat.message, reconnecting forever on failure.
type EventSubConnector struct {
	Helix   *twitchapi.HelixClient
	Tokens  *oauth.Manager
	DB      *sql.DB
	Channel string // broadcaster login
	BotUser string // bot login; empty means same as Channel
	Handler MessageHandler

	// WSURL overrides the dial target (tests).
	WSURL string

	mu      sync.Mutex
	state   State
	stop    chan struct{}
	stopped bool
}

// NewEventSubConnector wires the websocket connector.
func NewEventSubConnector(helix *twitchapi.HelixClient, tokens *oauth.Manager, dbx *sql.DB, channel, botUser string, handler MessageHandler) *EventSubConnector {
	if botUser == "" {
		botUser = channel
	}
	return &EventSubConnector{
		Helix:   helix,
		Tokens:  tokens,
		DB:      dbx,
		Channel: channel,
		BotUser: botUser,
		Handler: handler,
		state:   StateDisconnected,
		stop:    make(chan struct{}),
	}
}

// State reports the current lifecycle phase.
func (c *EventSubConnector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *EventSubConnector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	telemetry.SetChatConnected(s == StateSubscribed)
}

// Stop ends the connector; a running Start returns after the current read
// unblocks. Safe to call more than once.
func (c *EventSubConnector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
}

// Start runs the connect/subscribe/read loop until Stop or ctx cancellation.
// Dial and subscribe failures back off exponentially (1s doubling to 30s,
// jittered); the backoff resets after each successful subscribe.
func (c *EventSubConnector) Start(ctx context.Context) error {
	broadcasterID, botUserID, err := c.resolveIDs(ctx)
	if err != nil {
		return fmt.Errorf("resolve chat routing ids: %w", err)
	}

	policy := reconnectPolicy()
	dialURL := ""
	for {
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-c.stop:
			c.setState(StateDisconnected)
			return nil
		default:
		}

		err := c.runSession(ctx, broadcasterID, botUserID, dialURL, policy)
		dialURL = ""

		var reconnect *errReconnectRequested
		switch {
		case err == nil:
			// Stop or ctx; the top of the loop exits.
			continue
		case errors.As(err, &reconnect):
			dialURL = reconnect.url
			slog.Info("eventsub session migrating", slog.String("url", dialURL))
			continue
		}

		c.setState(StateDisconnected)
		if telemetry.ChatReconnects != nil {
			telemetry.ChatReconnects.Inc()
		}
		delay := policy.NextBackOff()
		slog.Warn("chat connection lost, reconnecting",
			slog.Any("err", err), slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-time.After(delay):
		}
	}
}

// resolveIDs maps the broadcaster and bot logins to user ids, consulting the
// kv cache first so restarts don't spend Helix calls on static data.
func (c *EventSubConnector) resolveIDs(ctx context.Context) (broadcasterID, botUserID string, err error) {
	broadcasterID, _ = db.GetKV(ctx, c.DB, kvBroadcasterID)
	botUserID, _ = db.GetKV(ctx, c.DB, kvBotUserID)
	if broadcasterID != "" && botUserID != "" {
		return broadcasterID, botUserID, nil
	}

	token, err := c.Tokens.GetValidToken(ctx)
	if err != nil {
		return "", "", err
	}
	if broadcasterID == "" {
		if broadcasterID, err = c.Helix.GetUserID(ctx, token, c.Channel); err != nil {
			return "", "", fmt.Errorf("broadcaster %q: %w", c.Channel, err)
		}
		if err := db.SetKV(ctx, c.DB, kvBroadcasterID, broadcasterID); err != nil {
			slog.Warn("failed to cache broadcaster id", slog.Any("err", err))
		}
	}
	if botUserID == "" {
		if c.BotUser == c.Channel {
			botUserID = broadcasterID
		} else if botUserID, err = c.Helix.GetUserID(ctx, token, c.BotUser); err != nil {
			return "", "", fmt.Errorf("bot user %q: %w", c.BotUser, err)
		}
		if err := db.SetKV(ctx, c.DB, kvBotUserID, botUserID); err != nil {
			slog.Warn("failed to cache bot user id", slog.Any("err", err))
		}
	}
	return broadcasterID, botUserID, nil
}

// runSession performs one dial/welcome/subscribe/read cycle. A nil return
// means stop or cancellation; *errReconnectRequested means redial elsewhere.
func (c *EventSubConnector) runSession(ctx context.Context, broadcasterID, botUserID, dialURL string, policy interface{ Reset() }) error {
	c.setState(StateConnecting)
	if dialURL == "" {
		dialURL = c.WSURL
		if dialURL == "" {
			dialURL = defaultWSURL
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, dialURL, http.Header{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", dialURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	// First frame must be the session welcome.
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	env, err := parseEnvelope(raw)
	if err != nil || env.Kind != frameWelcome {
		return fmt.Errorf("expected session_welcome, got %q (parse err: %v)", env.Kind, err)
	}
	keepalive := time.Duration(env.KeepaliveSeconds) * time.Second
	if keepalive <= 0 {
		keepalive = 60 * time.Second
	}

	token, err := c.Tokens.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("token for subscribe: %w", err)
	}
	if err := c.Helix.SubscribeChatMessages(ctx, token, broadcasterID, botUserID, env.SessionID); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.setState(StateSubscribed)
	policy.Reset()
	slog.Info("chat connected", slog.String("session_id", env.SessionID), slog.String("channel", c.Channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stop:
			return nil
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(keepalive + keepaliveSlack))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		env, err := parseEnvelope(raw)
		if err != nil {
			slog.Debug("dropping malformed chat frame", slog.Any("err", err))
			continue
		}
		switch env.Kind {
		case frameKeepalive, frameWelcome:
			// Nothing to do.
		case frameReconnect:
			if env.ReconnectURL != "" {
				return &errReconnectRequested{url: env.ReconnectURL}
			}
			return errors.New("session_reconnect without url")
		case frameRevocation:
			return errors.New("chat subscription revoked")
		case frameNotification:
			if env.Username == "" || env.Text == "" {
				slog.Debug("dropping chat event with no sender or text")
				continue
			}
			safeHandle(ctx, c.Handler, env.Username, env.Text)
		default:
			slog.Debug("dropping unknown chat frame", slog.String("type", string(env.Kind)))
		}
	}
}
