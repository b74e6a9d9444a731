package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/socialsync/socialsync/internal/platform"
)

// webhookAck is the body every accepted webhook delivery gets, as the
// Meta platforms expect a fast 200 regardless of processing outcome.
const webhookAck = "EVENT_RECEIVED"

// webhookVerify handles the GET subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (h *Handler) webhookVerify(platformName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := h.orch.Adapter(platformName)
		if adapter == nil {
			Error(w, http.StatusNotFound, "unknown platform")
			return
		}

		challenge, err := adapter.VerifyHandshake(r.URL.Query())
		if err != nil {
			h.logger.WarnContext(r.Context(), "Webhook verification rejected",
				"platform", platformName, "error", err)
			Error(w, http.StatusForbidden, "verification failed")
			return
		}

		h.logger.InfoContext(r.Context(), "Webhook verified", "platform", platformName)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
	}
}

// webhookReceive handles POST webhook deliveries. A bad signature is the
// only processing failure surfaced to the platform; everything past that
// point is acknowledged with 200 so the platform does not retry payloads
// the bridge has already accepted.
func (h *Handler) webhookReceive(platformName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := h.orch.Adapter(platformName)
		if adapter == nil {
			Error(w, http.StatusNotFound, "unknown platform")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			Error(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		if err := adapter.VerifySignature(body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			h.logger.WarnContext(r.Context(), "Webhook signature rejected",
				"platform", platformName, "error", err)
			Error(w, http.StatusForbidden, "signature verification failed")
			return
		}

		messages, err := adapter.Normalize(body)
		if err != nil {
			// Malformed or misaddressed payloads are logged and acknowledged;
			// retrying them cannot succeed.
			h.logger.WarnContext(r.Context(), "Failed to parse webhook payload",
				"platform", platformName, "error", err)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(webhookAck))
			return
		}

		if err := h.orch.HandleWebhook(r.Context(), messages); err != nil {
			h.logger.ErrorContext(r.Context(), "Webhook processing failed",
				"platform", platformName, "error", err)
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(webhookAck))
	}
}

type agentInvokeRequest struct {
	UserID   string `json:"user_id"`
	AltID    string `json:"userId"` // accepted for callers using the older field name
	Message  string `json:"message"`
	Platform string `json:"platform"`
}

type agentInvokeResponse struct {
	Reply string `json:"reply"`
}

// agentInvoke runs a full conversation turn without platform dispatch and
// returns the reply in the response body.
func (h *Handler) agentInvoke(w http.ResponseWriter, r *http.Request) {
	var req agentInvokeRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = req.AltID
	}
	if userID == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "user_id and message are required")
		return
	}
	if req.Platform != "" && req.Platform != platform.API && !platform.Known(req.Platform) {
		Error(w, http.StatusBadRequest, "unknown platform")
		return
	}

	reply, err := h.orch.DirectInvoke(r.Context(), req.Platform, userID, req.Message)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Direct invocation failed",
			"user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "agent invocation failed")
		return
	}

	JSON(w, http.StatusOK, agentInvokeResponse{Reply: reply})
}

// usersList returns all known users for a platform.
func (h *Handler) usersList(w http.ResponseWriter, r *http.Request) {
	platformName := r.URL.Query().Get("platform")
	if platformName == "" {
		Error(w, http.StatusBadRequest, "platform query parameter is required")
		return
	}

	users, err := h.store.ListUsers(r.Context(), platformName)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list users",
			"platform", platformName, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"platform": platformName,
		"users":    users,
	})
}

// chatHistory returns a user's recent messages, most recent first. The
// limit is clamped server-side regardless of what the caller asks for.
func (h *Handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	platformName := query.Get("platform")
	userID := query.Get("user_id")
	if platformName == "" || userID == "" {
		Error(w, http.StatusBadRequest, "platform and user_id query parameters are required")
		return
	}

	limit := h.history.DefaultLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > h.history.MaxLimit {
		limit = h.history.MaxLimit
	}

	messages, err := h.store.GetHistory(r.Context(), platformName, userID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to get chat history",
			"platform", platformName, "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get chat history")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"platform": platformName,
		"user_id":  userID,
		"messages": messages,
	})
}

func decodeJSON(body io.Reader, v any) error {
	return json.NewDecoder(io.LimitReader(body, maxWebhookBody)).Decode(v)
}
