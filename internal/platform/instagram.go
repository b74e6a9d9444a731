package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/socialsync/socialsync/internal/config"
)

// InstagramAdapter bridges Instagram DM. Instagram rides the Messenger
// Platform, so the webhook envelope and send call match Facebook's; only
// the accepted object types and credentials differ.
type InstagramAdapter struct {
	cfg    config.MetaPlatformConfig
	client *graphClient
	logger *slog.Logger
}

// NewInstagramAdapter creates the Instagram DM adapter.
func NewInstagramAdapter(cfg config.MetaPlatformConfig, baseURL string, logger *slog.Logger) *InstagramAdapter {
	log := logger.With("component", "instagram_adapter")
	return &InstagramAdapter{cfg: cfg, client: newGraphClient(baseURL, log), logger: log}
}

func (a *InstagramAdapter) Name() string { return Instagram }

func (a *InstagramAdapter) VerifyHandshake(query url.Values) (string, error) {
	return verifyHandshake(query, a.cfg.VerifyToken)
}

func (a *InstagramAdapter) VerifySignature(body []byte, signatureHeader string) error {
	return validateSignature(body, signatureHeader, a.cfg.AppSecret)
}

func (a *InstagramAdapter) Normalize(body []byte) ([]InboundMessage, error) {
	var payload messengerWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse instagram payload: %w", err)
	}
	// Instagram deliveries arrive with object "instagram", or "page" for
	// accounts linked through a Facebook page.
	if payload.Object != "instagram" && payload.Object != "page" {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedPayload, payload.Object)
	}

	var messages []InboundMessage
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			messages = append(messages, normalizeMessengerEvent(Instagram, ev))
		}
	}
	return messages, nil
}

func (a *InstagramAdapter) Send(ctx context.Context, userID, text string, quickReplies []QuickReply) error {
	return a.client.sendMessenger(ctx, Instagram, a.cfg.AccessToken, userID, text, quickReplies)
}
