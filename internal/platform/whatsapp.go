package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/socialsync/socialsync/internal/config"
)

// whatsappWebhook is the WhatsApp Cloud API webhook envelope.
type whatsappWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []whatsappMessage `json:"messages"`
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsappMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
}

// WhatsAppAdapter bridges WhatsApp Business via the Cloud API.
type WhatsAppAdapter struct {
	cfg    config.WhatsAppConfig
	client *graphClient
	logger *slog.Logger
}

// NewWhatsAppAdapter creates the WhatsApp adapter.
func NewWhatsAppAdapter(cfg config.WhatsAppConfig, baseURL string, logger *slog.Logger) *WhatsAppAdapter {
	log := logger.With("component", "whatsapp_adapter")
	return &WhatsAppAdapter{cfg: cfg, client: newGraphClient(baseURL, log), logger: log}
}

func (a *WhatsAppAdapter) Name() string { return WhatsApp }

func (a *WhatsAppAdapter) VerifyHandshake(query url.Values) (string, error) {
	return verifyHandshake(query, a.cfg.VerifyToken)
}

func (a *WhatsAppAdapter) VerifySignature(body []byte, signatureHeader string) error {
	return validateSignature(body, signatureHeader, a.cfg.AppSecret)
}

func (a *WhatsAppAdapter) Normalize(body []byte) ([]InboundMessage, error) {
	var payload whatsappWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse whatsapp payload: %w", err)
	}
	if payload.Object != "whatsapp_business_account" {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedPayload, payload.Object)
	}

	var messages []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			// Status-only changes (sent/delivered/read) are no-ops.
			if len(value.Messages) == 0 && len(value.Statuses) > 0 {
				messages = append(messages, InboundMessage{
					Platform: WhatsApp,
					Noop:     true,
					Reason:   "status update",
				})
				continue
			}

			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[c.WaID] = c.Profile.Name
			}

			for _, wm := range value.Messages {
				msg := InboundMessage{
					Platform:    WhatsApp,
					UserID:      wm.From,
					DisplayName: names[wm.From],
					MessageID:   wm.ID,
				}

				switch {
				case wm.Type == "text" && wm.Text != nil:
					msg.Text = wm.Text.Body
				case wm.Interactive != nil && wm.Interactive.ButtonReply != nil:
					msg.Text = wm.Interactive.ButtonReply.Title
					msg.Payload = wm.Interactive.ButtonReply.ID
				default:
					// WhatsApp policy: non-text content maps to a
					// textual placeholder instead of being rejected.
					msg.Text = fmt.Sprintf("[unsupported %s message]", wm.Type)
				}

				messages = append(messages, msg)
			}
		}
	}
	return messages, nil
}

// whatsappTextRequest is the Cloud API plain-text send shape.
type whatsappTextRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// whatsappInteractiveRequest is the Cloud API button-message send shape.
type whatsappInteractiveRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Interactive      struct {
		Type string `json:"type"`
		Body struct {
			Text string `json:"text"`
		} `json:"body"`
		Action struct {
			Buttons []whatsappButton `json:"buttons"`
		} `json:"action"`
	} `json:"interactive"`
}

type whatsappButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

func (a *WhatsAppAdapter) Send(ctx context.Context, userID, text string, quickReplies []QuickReply) error {
	path := "/" + a.cfg.PhoneNumberID + "/messages"

	// WhatsApp supports at most three quick-reply buttons.
	if len(quickReplies) > 0 && len(quickReplies) <= 3 {
		req := whatsappInteractiveRequest{MessagingProduct: "whatsapp", To: userID, Type: "interactive"}
		req.Interactive.Type = "button"
		req.Interactive.Body.Text = text
		for _, qr := range quickReplies {
			var btn whatsappButton
			btn.Type = "reply"
			btn.Reply.ID = qr.Payload
			btn.Reply.Title = qr.Title
			req.Interactive.Action.Buttons = append(req.Interactive.Action.Buttons, btn)
		}
		return a.client.post(ctx, WhatsApp, path, nil, a.cfg.AccessToken, req)
	}

	req := whatsappTextRequest{MessagingProduct: "whatsapp", To: userID, Type: "text"}
	req.Text.Body = text
	return a.client.post(ctx, WhatsApp, path, nil, a.cfg.AccessToken, req)
}
