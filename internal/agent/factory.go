package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/socialsync/socialsync/internal/config"
)

// New creates the Invoker selected by agent.provider.
func New(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (Invoker, error) {
	switch cfg.Provider {
	case "bedrock":
		return NewBedrock(ctx, cfg, logger)
	case "gemini":
		return NewGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
	}
}
