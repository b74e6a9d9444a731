package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/socialsync/socialsync/internal/config"
)

// bedrockInvoker calls an AWS Bedrock Agent. The agent keeps its own
// conversation memory per session id, so seed turns are ignored.
type bedrockInvoker struct {
	client  *bedrockagentruntime.Client
	agentID string
	aliasID string
	logger  *slog.Logger
}

// NewBedrock creates the Bedrock Agent Runtime invoker.
func NewBedrock(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (Invoker, error) {
	if cfg.BedrockAgentID == "" || cfg.BedrockAliasID == "" {
		return nil, fmt.Errorf("bedrock agent id and alias id are required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log := logger.With("component", "bedrock_agent")
	log.Info("Bedrock agent client initialized", "agent_id", cfg.BedrockAgentID, "region", cfg.AWSRegion)

	return &bedrockInvoker{
		client:  bedrockagentruntime.NewFromConfig(awsCfg),
		agentID: cfg.BedrockAgentID,
		aliasID: cfg.BedrockAliasID,
		logger:  log,
	}, nil
}

func (b *bedrockInvoker) Invoke(ctx context.Context, userID, sessionID, text string, _ []Turn) (string, string, error) {
	out, err := b.client.InvokeAgent(ctx, &bedrockagentruntime.InvokeAgentInput{
		AgentId:      aws.String(b.agentID),
		AgentAliasId: aws.String(b.aliasID),
		SessionId:    aws.String(sessionID),
		InputText:    aws.String(text),
		EnableTrace:  aws.Bool(false),
	})
	if err != nil {
		return "", "", fmt.Errorf("bedrock agent invocation failed: %w", err)
	}

	// The reply arrives as an event stream of text chunks.
	stream := out.GetStream()
	defer stream.Close()

	var completion strings.Builder
	for event := range stream.Events() {
		if chunk, ok := event.(*brtypes.ResponseStreamMemberChunk); ok {
			completion.Write(chunk.Value.Bytes)
		}
	}
	if err := stream.Err(); err != nil {
		return "", "", fmt.Errorf("bedrock response stream failed: %w", err)
	}

	reply := strings.TrimSpace(completion.String())
	if reply == "" {
		return "", "", ErrEmptyReply
	}

	b.logger.DebugContext(ctx, "Bedrock agent replied",
		"user_id", userID, "session_id", sessionID, "chars", len(reply))
	return reply, sessionID, nil
}
