package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

type frameKind string

const (
	frameWelcome      frameKind = "session_welcome"
	frameKeepalive    frameKind = "session_keepalive"
	frameReconnect    frameKind = "session_reconnect"
	frameNotification frameKind = "notification"
	frameRevocation   frameKind = "revocation"
)

// envelope is the decoded shape of one websocket frame, flattened to the
// fields the connector acts on.
type envelope struct {
	Kind             frameKind
	SessionID        string
	KeepaliveSeconds int
	ReconnectURL     string
	Username         string
	Text             string
}

// parseEnvelope decodes a frame defensively. The upstream event shape has
// drifted across feed revisions, so the sender and text are extracted with
// fallback field names and anything unrecognized is reported as an error for
// the caller to drop.
func parseEnvelope(raw []byte) (envelope, error) {
	var frame struct {
		Metadata struct {
			MessageType string `json:"message_type"`
		} `json:"metadata"`
		Payload struct {
			Session struct {
				ID                      string `json:"id"`
				KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
				ReconnectURL            string `json:"reconnect_url"`
			} `json:"session"`
			Event struct {
				ChatterUserLogin string          `json:"chatter_user_login"`
				ChatterUserName  string          `json:"chatter_user_name"`
				UserLogin        string          `json:"user_login"`
				UserName         string          `json:"user_name"`
				Message          json.RawMessage `json:"message"`
				Text             string          `json:"text"`
			} `json:"event"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Metadata.MessageType == "" {
		return envelope{}, fmt.Errorf("frame has no message_type")
	}

	env := envelope{
		Kind:             frameKind(frame.Metadata.MessageType),
		SessionID:        frame.Payload.Session.ID,
		KeepaliveSeconds: frame.Payload.Session.KeepaliveTimeoutSeconds,
		ReconnectURL:     frame.Payload.Session.ReconnectURL,
	}
	if env.Kind != frameNotification {
		return env, nil
	}

	ev := frame.Payload.Event
	for _, candidate := range []string{ev.ChatterUserLogin, ev.ChatterUserName, ev.UserLogin, ev.UserName} {
		if candidate != "" {
			env.Username = strings.ToLower(candidate)
			break
		}
	}
	env.Text = extractText(ev.Message, ev.Text)
	return env, nil
}

// extractText accepts both message shapes seen in the wild: an object with a
// "text" field, or a bare string.
func extractText(message json.RawMessage, fallback string) string {
	if len(message) > 0 {
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(message, &obj); err == nil && obj.Text != "" {
			return obj.Text
		}
		var s string
		if err := json.Unmarshal(message, &s); err == nil && s != "" {
			return s
		}
	}
	return fallback
}
