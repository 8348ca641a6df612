package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/pokecatch/oauth"
	"github.com/onnwee/pokecatch/telemetry"
)

// IRCConnector is the legacy transport, kept selectable for channels where
// the websocket feed is unavailable. Same handler contract, same reconnect
// policy as the websocket connector.
type IRCConnector struct {
	Tokens  *oauth.Manager
	Channel string
	BotUser string
	Handler MessageHandler

	mu      sync.Mutex
	state   State
	client  *twitch.Client
	stop    chan struct{}
	stopped bool
}

// NewIRCConnector wires the IRC transport.
func NewIRCConnector(tokens *oauth.Manager, channel, botUser string, handler MessageHandler) *IRCConnector {
	if botUser == "" {
		botUser = channel
	}
	return &IRCConnector{
		Tokens:  tokens,
		Channel: channel,
		BotUser: botUser,
		Handler: handler,
		state:   StateDisconnected,
		stop:    make(chan struct{}),
	}
}

// State reports the current lifecycle phase.
func (c *IRCConnector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *IRCConnector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	telemetry.SetChatConnected(s == StateSubscribed)
}

// Stop disconnects and prevents further reconnects. Safe to call more than once.
func (c *IRCConnector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
	if c.client != nil {
		_ = c.client.Disconnect()
	}
}

// Start connects and reads until Stop or ctx cancellation, reconnecting with
// the shared backoff policy on failure.
func (c *IRCConnector) Start(ctx context.Context) error {
	policy := reconnectPolicy()
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

		err := c.runOnce(ctx, policy)
		if err == nil {
			continue
		}

		c.setState(StateDisconnected)
		if telemetry.ChatReconnects != nil {
			telemetry.ChatReconnects.Inc()
		}
		delay := policy.NextBackOff()
		slog.Warn("irc connection lost, reconnecting",
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

func (c *IRCConnector) runOnce(ctx context.Context, policy interface{ Reset() }) error {
	c.setState(StateConnecting)

	token, err := c.Tokens.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("token for irc: %w", err)
	}
	client := twitch.NewClient(c.BotUser, "oauth:"+token)
	client.OnConnect(func() {
		c.setState(StateSubscribed)
		policy.Reset()
		slog.Info("irc connected", slog.String("channel", c.Channel))
	})
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		safeHandle(ctx, c.Handler, msg.User.Name, msg.Message)
	})
	client.Join(c.Channel)

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Disconnect()
		case <-c.stop:
			// Stop already disconnected the client.
		case <-done:
		}
	}()

	err = client.Connect()
	close(done)
	if errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}
