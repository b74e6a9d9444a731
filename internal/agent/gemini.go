package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/socialsync/socialsync/internal/config"
)

// geminiInvoker calls the Gemini API. The API is stateless per call, so
// conversation continuity comes entirely from the seed turns the
// orchestrator replays.
type geminiInvoker struct {
	client *genai.Client
	model  string
	genCfg *genai.GenerateContentConfig
	logger *slog.Logger
}

// NewGemini creates the Gemini invoker.
func NewGemini(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (Invoker, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{}
	if cfg.GeminiMaxTokens > 0 {
		genCfg.MaxOutputTokens = cfg.GeminiMaxTokens
	}

	log := logger.With("component", "gemini_agent")
	log.Info("Gemini client initialized", "model", cfg.GeminiModel)

	return &geminiInvoker{
		client: client,
		model:  cfg.GeminiModel,
		genCfg: genCfg,
		logger: log,
	}, nil
}

func (g *geminiInvoker) Invoke(ctx context.Context, userID, sessionID, text string, seed []Turn) (string, string, error) {
	contents := make([]*genai.Content, 0, len(seed)+1)
	for _, turn := range seed {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleAgent {
			role = genai.Role(genai.RoleModel)
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.genCfg)
	if err != nil {
		return "", "", fmt.Errorf("gemini API call failed: %w", err)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", "", ErrEmptyReply
	}

	g.logger.DebugContext(ctx, "Gemini replied",
		"user_id", userID, "session_id", sessionID, "chars", len(reply))
	return reply, sessionID, nil
}
