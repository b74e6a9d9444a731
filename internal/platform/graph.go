package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultGraphBaseURL is the Meta Graph API endpoint used by all three
// adapters. Tests point it at a local httptest server.
const DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// graphClient posts JSON payloads to the Graph API.
type graphClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func newGraphClient(baseURL string, logger *slog.Logger) *graphClient {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &graphClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// post sends payload to the given path. A bearer token is attached as a
// header when provided; Messenger-style endpoints pass the token as a
// query parameter instead.
func (c *graphClient) post(ctx context.Context, platform, path string, query map[string]string, bearer string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", platform, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", platform, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DeliveryError{Platform: platform, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "Graph API send failed",
			"platform", platform, "status", resp.StatusCode, "body", string(respBody))
		return &DeliveryError{Platform: platform, StatusCode: resp.StatusCode, Reason: string(respBody)}
	}

	return nil
}

// messengerSendRequest is the Messenger Platform send shape, shared by
// Facebook and Instagram.
type messengerSendRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message messengerMessage `json:"message"`
}

type messengerMessage struct {
	Text         string                `json:"text"`
	QuickReplies []messengerQuickReply `json:"quick_replies,omitempty"`
}

type messengerQuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// sendMessenger delivers a message through POST /me/messages, used by both
// the Facebook and Instagram adapters.
func (c *graphClient) sendMessenger(ctx context.Context, platform, accessToken, userID, text string, quickReplies []QuickReply) error {
	var req messengerSendRequest
	req.Recipient.ID = userID
	req.Message.Text = text
	for _, qr := range quickReplies {
		req.Message.QuickReplies = append(req.Message.QuickReplies, messengerQuickReply{
			ContentType: "text",
			Title:       qr.Title,
			Payload:     qr.Payload,
		})
	}

	return c.post(ctx, platform, "/me/messages", map[string]string{"access_token": accessToken}, "", req)
}
