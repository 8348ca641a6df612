// Package twitchapi contains minimal helpers for the Twitch Helix API: user id
// resolution and chat message delivery, plus the OAuth token grants the bot needs.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HelixClient provides the minimal Helix surface for the bot.
type HelixClient struct {
	ClientID   string
	HTTPClient *http.Client

	// BaseURL defaults to the public Helix endpoint; tests point it at a mock.
	BaseURL string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return "https://api.twitch.tv/helix"
}

// GetUserID resolves a login name to its user ID using the given bearer token.
func (hc *HelixClient) GetUserID(ctx context.Context, token, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/users", nil)
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("helix users request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// SendChatMessage posts a chat message to the broadcaster's room as the bot user.
// Failure classes the delivery queue cares about are typed: *RateLimitedError for
// 429 (carrying the server-suggested delay) and ErrUnauthorized for 401.
func (hc *HelixClient) SendChatMessage(ctx context.Context, token, broadcasterID, senderID, message string) error {
	payload, err := json.Marshal(map[string]string{
		"broadcaster_id": broadcasterID,
		"sender_id":      senderID,
		"message":        message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.base()+"/chat/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix send message failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []struct {
			IsSent     bool `json:"is_sent"`
			DropReason *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"drop_reason"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// 2xx with an unreadable body still counts as delivered
		slog.Debug("send message response decode failed", slog.Any("err", err))
		return nil
	}
	if len(body.Data) > 0 && !body.Data[0].IsSent {
		reason := "unknown"
		if dr := body.Data[0].DropReason; dr != nil {
			reason = dr.Code + ": " + dr.Message
		}
		return fmt.Errorf("helix dropped message: %s", reason)
	}
	return nil
}

// SubscribeChatMessages creates a websocket-transport EventSub subscription for
// channel.chat.message events delivered to the given session.
func (hc *HelixClient) SubscribeChatMessages(ctx context.Context, token, broadcasterID, botUserID, sessionID string) error {
	payload, err := json.Marshal(map[string]any{
		"type":    "channel.chat.message",
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": broadcasterID,
			"user_id":             botUserID,
		},
		"transport": map[string]string{
			"method":     "websocket",
			"session_id": sessionID,
		},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hc.base()+"/eventsub/subscriptions", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("eventsub subscribe failed: %s: %s", resp.Status, string(b))
	}
	return nil
}

// retryAfter derives the server-suggested wait from a 429 response, preferring
// Retry-After (seconds) and falling back to Ratelimit-Reset (epoch seconds).
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("Ratelimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
