// Package server exposes the bridge's HTTP surface: the platform webhook
// endpoints, the direct agent endpoint, and the read-only user/history
// endpoints.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/socialsync/socialsync/internal/config"
	"github.com/socialsync/socialsync/internal/database"
	"github.com/socialsync/socialsync/internal/logger"
	"github.com/socialsync/socialsync/internal/orchestrator"
	"github.com/socialsync/socialsync/internal/platform"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	orch    *orchestrator.Orchestrator
	store   database.Store
	history config.HistoryConfig
	logger  *slog.Logger
}

// NewHandler creates a Handler with common dependencies.
func NewHandler(orch *orchestrator.Orchestrator, store database.Store, history config.HistoryConfig, log *slog.Logger) *Handler {
	return &Handler{
		orch:    orch,
		store:   store,
		history: history,
		logger:  log.With("component", "http"),
	}
}

// NewRouter builds the chi router with the full route set.
func NewRouter(h *Handler, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(logger.Middleware(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	for _, name := range []string{platform.Facebook, platform.Instagram, platform.WhatsApp} {
		route := "/webhook_" + name
		r.Get(route, h.webhookVerify(name))
		r.Post(route, h.webhookReceive(name))
	}

	r.Post("/agent_invoke", h.agentInvoke)
	r.Get("/users_list", h.usersList)
	r.Get("/chat_history", h.chatHistory)

	return r
}

// NewServer wraps the router in an http.Server with the configured
// timeouts.
func NewServer(cfg config.ServerConfig, router http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * time.Minute,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
