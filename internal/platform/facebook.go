package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/socialsync/socialsync/internal/config"
)

// messengerWebhook is the Messenger Platform webhook envelope, shared by
// Facebook pages and Instagram accounts.
type messengerWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messengerEvent `json:"messaging"`
	} `json:"entry"`
}

type messengerEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		MID        string `json:"mid"`
		Text       string `json:"text"`
		IsEcho     bool   `json:"is_echo"`
		QuickReply *struct {
			Payload string `json:"payload"`
		} `json:"quick_reply"`
		Attachments []json.RawMessage `json:"attachments"`
	} `json:"message"`
	Delivery *json.RawMessage `json:"delivery"`
	Read     *json.RawMessage `json:"read"`
}

// normalizeMessengerEvent maps one messaging event to the internal shape.
// Echoes, delivery confirmations, and read receipts become no-ops so the
// orchestrator never replies to the bridge's own traffic.
func normalizeMessengerEvent(platform string, ev messengerEvent) InboundMessage {
	msg := InboundMessage{Platform: platform, UserID: ev.Sender.ID}

	switch {
	case ev.Delivery != nil:
		msg.Noop = true
		msg.Reason = "delivery confirmation"
	case ev.Read != nil:
		msg.Noop = true
		msg.Reason = "read receipt"
	case ev.Message == nil:
		msg.Noop = true
		msg.Reason = "no message in event"
	case ev.Message.IsEcho:
		msg.Noop = true
		msg.Reason = "echo of own message"
	case ev.Message.Text == "":
		// Messenger policy: attachment-only messages are rejected as
		// unsupported rather than mapped to a placeholder.
		msg.Unsupported = true
		msg.MessageID = ev.Message.MID
		msg.Reason = "non-text message content"
	default:
		msg.Text = ev.Message.Text
		msg.MessageID = ev.Message.MID
		if ev.Message.QuickReply != nil {
			msg.Payload = ev.Message.QuickReply.Payload
		}
	}

	return msg
}

// FacebookAdapter bridges Facebook Messenger.
type FacebookAdapter struct {
	cfg    config.MetaPlatformConfig
	client *graphClient
	logger *slog.Logger
}

// NewFacebookAdapter creates the Facebook Messenger adapter. baseURL
// overrides the Graph API endpoint; empty means production.
func NewFacebookAdapter(cfg config.MetaPlatformConfig, baseURL string, logger *slog.Logger) *FacebookAdapter {
	log := logger.With("component", "facebook_adapter")
	return &FacebookAdapter{cfg: cfg, client: newGraphClient(baseURL, log), logger: log}
}

func (a *FacebookAdapter) Name() string { return Facebook }

func (a *FacebookAdapter) VerifyHandshake(query url.Values) (string, error) {
	return verifyHandshake(query, a.cfg.VerifyToken)
}

func (a *FacebookAdapter) VerifySignature(body []byte, signatureHeader string) error {
	return validateSignature(body, signatureHeader, a.cfg.AppSecret)
}

func (a *FacebookAdapter) Normalize(body []byte) ([]InboundMessage, error) {
	var payload messengerWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse facebook payload: %w", err)
	}
	if payload.Object != "page" {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedPayload, payload.Object)
	}

	var messages []InboundMessage
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			messages = append(messages, normalizeMessengerEvent(Facebook, ev))
		}
	}
	return messages, nil
}

func (a *FacebookAdapter) Send(ctx context.Context, userID, text string, quickReplies []QuickReply) error {
	return a.client.sendMessenger(ctx, Facebook, a.cfg.AccessToken, userID, text, quickReplies)
}
