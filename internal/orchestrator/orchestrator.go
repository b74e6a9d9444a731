// Package orchestrator implements the conversation pipeline: it takes
// normalized inbound messages, maintains per-user history and agent
// session continuity, invokes the agent backend, and dispatches replies
// through the originating platform adapter.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/socialsync/socialsync/internal/agent"
	"github.com/socialsync/socialsync/internal/config"
	"github.com/socialsync/socialsync/internal/database"
	"github.com/socialsync/socialsync/internal/platform"
	"github.com/socialsync/socialsync/internal/translate"
)

// Stage identifies where in the pipeline a request is, or where it failed.
type Stage string

// Pipeline stages in order.
const (
	StageReceived         Stage = "received"
	StageNormalized       Stage = "normalized"
	StagePersisted        Stage = "persisted"
	StageContextAssembled Stage = "context_assembled"
	StageAgentInvoked     Stage = "agent_invoked"
	StageReplyPersisted   Stage = "reply_persisted"
	StageDispatched       Stage = "dispatched"
)

// maxConcurrentUsers bounds the fan-out over distinct users within one
// webhook payload.
const maxConcurrentUsers = 8

// PipelineError tags a failure with the stage it occurred at. Steps
// committed before the failing stage stand.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func failAt(stage Stage, err error) *PipelineError {
	return &PipelineError{Stage: stage, Err: err}
}

// Orchestrator is the pipeline controller.
type Orchestrator struct {
	store    database.Store
	invoker  agent.Invoker
	adapters map[string]platform.Adapter
	language *translate.Workflow // nil when translation is disabled

	agentTimeout time.Duration
	idleTimeout  time.Duration
	seedHistory  int

	locks  userLocks
	logger *slog.Logger
}

// New creates the orchestrator. language may be nil to disable the
// translation workflow.
func New(store database.Store, invoker agent.Invoker, adapters []platform.Adapter,
	language *translate.Workflow, cfg *config.Config, logger *slog.Logger,
) *Orchestrator {
	byName := make(map[string]platform.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}

	return &Orchestrator{
		store:        store,
		invoker:      invoker,
		adapters:     byName,
		language:     language,
		agentTimeout: cfg.Agent.Timeout,
		idleTimeout:  cfg.Session.IdleTimeout,
		seedHistory:  cfg.Session.SeedHistory,
		logger:       logger.With("component", "orchestrator"),
	}
}

// Adapter returns the adapter for a platform name, or nil.
func (o *Orchestrator) Adapter(name string) platform.Adapter {
	return o.adapters[name]
}

// HandleWebhook runs the pipeline for every message in a normalized
// webhook payload. Messages are grouped per user: each user's messages
// run in arrival order, distinct users run concurrently. One user's
// failure never cancels the others' pipelines; the platform acks 200
// either way and will not redeliver, so every user's turn must get its
// chance to complete. Failures are logged by the caller.
func (o *Orchestrator) HandleWebhook(ctx context.Context, messages []platform.InboundMessage) error {
	byUser := make(map[string][]platform.InboundMessage)
	var order []string
	for _, msg := range messages {
		switch {
		case msg.Noop:
			o.logger.DebugContext(ctx, "Discarding no-op event",
				"platform", msg.Platform, "user_id", msg.UserID, "reason", msg.Reason)
		case msg.Unsupported:
			o.logger.WarnContext(ctx, "Discarding unsupported message content",
				"platform", msg.Platform, "user_id", msg.UserID, "reason", msg.Reason)
		case msg.UserID == "" || msg.Text == "":
			o.logger.WarnContext(ctx, "Discarding malformed event",
				"platform", msg.Platform, "user_id", msg.UserID)
		default:
			key := msg.Platform + "|" + msg.UserID
			if _, seen := byUser[key]; !seen {
				order = append(order, key)
			}
			byUser[key] = append(byUser[key], msg)
		}
	}

	var group errgroup.Group
	group.SetLimit(maxConcurrentUsers)
	for _, key := range order {
		msgs := byUser[key]
		group.Go(func() error {
			for _, msg := range msgs {
				if err := o.ProcessInbound(ctx, msg); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// ProcessInbound runs the full pipeline for one inbound message:
// deduplicate, upsert user, persist the user turn, invoke the agent under
// its session, persist the reply, dispatch it.
func (o *Orchestrator) ProcessInbound(ctx context.Context, msg platform.InboundMessage) error {
	adapter := o.adapters[msg.Platform]
	if adapter == nil {
		return failAt(StageNormalized, fmt.Errorf("no adapter for platform %q", msg.Platform))
	}

	mu := o.locks.lock(msg.Platform, msg.UserID)
	mu.Lock()
	defer mu.Unlock()

	// Platform-side webhook retries redeliver the same message id; a
	// duplicate must not trigger a second agent invocation.
	if msg.MessageID != "" {
		seen, err := o.store.HasPlatformMessage(ctx, msg.Platform, msg.UserID, msg.MessageID)
		if err != nil {
			return failAt(StagePersisted, err)
		}
		if seen {
			o.logger.InfoContext(ctx, "Duplicate message, skipping",
				"platform", msg.Platform, "user_id", msg.UserID, "platform_message_id", msg.MessageID)
			return nil
		}
	}

	user, err := o.store.UpsertUser(ctx, msg.Platform, msg.UserID, msg.DisplayName)
	if err != nil {
		return failAt(StagePersisted, err)
	}

	if err := o.store.AppendMessage(ctx, &database.Message{
		Platform:          msg.Platform,
		UserID:            msg.UserID,
		Role:              database.RoleUser,
		Content:           msg.Text,
		PlatformMessageID: msg.MessageID,
	}); err != nil {
		return failAt(StagePersisted, err)
	}

	// Language workflow intercepts the turn for users without a stored
	// preference: prompt for one, or record the selection.
	if o.language != nil {
		handled, err := o.handleLanguageTurn(ctx, adapter, user, msg)
		if handled || err != nil {
			return err
		}
	}

	reply, err := o.runAgentTurn(ctx, msg.Platform, msg.UserID, msg.Text, user.PreferredLanguage)
	if err != nil {
		return err
	}

	if err := o.store.AppendMessage(ctx, &database.Message{
		Platform: msg.Platform,
		UserID:   msg.UserID,
		Role:     database.RoleAgent,
		Content:  reply,
	}); err != nil {
		return failAt(StageReplyPersisted, err)
	}

	// The reply is recorded before dispatch, so a send failure leaves
	// history complete; delivery is not retried here.
	if err := adapter.Send(ctx, msg.UserID, reply, nil); err != nil {
		return failAt(StageDispatched, err)
	}

	return nil
}

// DirectInvoke runs the persistence and agent stages without platform
// dispatch, for the direct API endpoint. platformName may be empty, in
// which case the pseudo-platform "api" scopes the conversation.
func (o *Orchestrator) DirectInvoke(ctx context.Context, platformName, userID, text string) (string, error) {
	if platformName == "" {
		platformName = platform.API
	}

	mu := o.locks.lock(platformName, userID)
	mu.Lock()
	defer mu.Unlock()

	user, err := o.store.UpsertUser(ctx, platformName, userID, "")
	if err != nil {
		return "", failAt(StagePersisted, err)
	}

	if err := o.store.AppendMessage(ctx, &database.Message{
		Platform: platformName,
		UserID:   userID,
		Role:     database.RoleUser,
		Content:  text,
	}); err != nil {
		return "", failAt(StagePersisted, err)
	}

	reply, err := o.runAgentTurn(ctx, platformName, userID, text, user.PreferredLanguage)
	if err != nil {
		return "", err
	}

	if err := o.store.AppendMessage(ctx, &database.Message{
		Platform: platformName,
		UserID:   userID,
		Role:     database.RoleAgent,
		Content:  reply,
	}); err != nil {
		return "", failAt(StageReplyPersisted, err)
	}

	return reply, nil
}

// runAgentTurn loads or mints the agent session, assembles seed context,
// invokes the agent under the configured timeout, and persists the
// session state. Returns the reply translated back to the user's
// language when translation is active.
func (o *Orchestrator) runAgentTurn(ctx context.Context, platformName, userID, text, userLanguage string) (string, error) {
	now := time.Now().UTC()

	session, err := o.store.GetSession(ctx, platformName, userID)
	if err != nil {
		return "", failAt(StageContextAssembled, err)
	}

	var seed []agent.Turn
	fresh := session == nil || now.Sub(session.LastActivityAt) > o.idleTimeout
	if fresh {
		session = &database.Session{
			Platform:       platformName,
			UserID:         userID,
			AgentSessionID: uuid.NewString(),
		}
		// Seed context replays recent turns into the new session; with
		// seed_history=0 continuity is left to the backend's own memory.
		if o.seedHistory > 0 {
			seed, err = o.seedTurns(ctx, platformName, userID)
			if err != nil {
				return "", failAt(StageContextAssembled, err)
			}
		}
	}

	prompt := text
	if o.language != nil {
		prompt = o.language.ToEnglish(ctx, text, userLanguage)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, o.agentTimeout)
	defer cancel()

	reply, newSessionID, err := o.invoker.Invoke(invokeCtx, userID, session.AgentSessionID, prompt, seed)
	if err != nil {
		// The user message persisted above stands; the conversation is
		// left in a half turn the next message can continue from.
		return "", failAt(StageAgentInvoked, err)
	}

	session.AgentSessionID = newSessionID
	session.LastActivityAt = now
	// Session state is store persistence; tagging it as such keeps
	// backend failures and store failures distinguishable in logs.
	if err := o.store.PutSession(ctx, session); err != nil {
		return "", failAt(StageReplyPersisted, err)
	}

	if o.language != nil {
		reply = o.language.FromEnglish(ctx, reply, userLanguage)
	}
	return reply, nil
}

// seedTurns returns the most recent stored turns in chronological order,
// excluding the user message persisted for the current turn.
func (o *Orchestrator) seedTurns(ctx context.Context, platformName, userID string) ([]agent.Turn, error) {
	history, err := o.store.GetHistory(ctx, platformName, userID, o.seedHistory+1)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		history = history[1:] // newest entry is the current message
	}

	// History arrives newest first; replay oldest first.
	turns := make([]agent.Turn, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		turns = append(turns, agent.Turn{Role: history[i].Role, Text: history[i].Content})
	}
	return turns, nil
}

// handleLanguageTurn implements the language selection workflow. Returns
// handled=true when the turn was consumed (prompt or confirmation sent)
// and the agent must not run.
func (o *Orchestrator) handleLanguageTurn(ctx context.Context, adapter platform.Adapter,
	user *database.User, msg platform.InboundMessage,
) (bool, error) {
	if user.PreferredLanguage != "" {
		return false, nil
	}

	if code := o.language.Selection(msg.Text, msg.Payload); code != "" && o.language.Supported(code) {
		if err := o.store.SetUserLanguage(ctx, msg.Platform, msg.UserID, code); err != nil {
			return true, failAt(StagePersisted, err)
		}
		return true, o.sendServiceReply(ctx, adapter, msg, o.language.Confirmation(code), nil)
	}

	var quickReplies []platform.QuickReply
	for _, opt := range o.language.Options() {
		quickReplies = append(quickReplies, platform.QuickReply{
			Title:   opt.Name,
			Payload: "LANG_" + opt.Code,
		})
	}
	return true, o.sendServiceReply(ctx, adapter, msg, o.language.PromptText(), quickReplies)
}

// sendServiceReply persists and dispatches a bridge-generated reply (one
// that did not come from the agent backend).
func (o *Orchestrator) sendServiceReply(ctx context.Context, adapter platform.Adapter,
	msg platform.InboundMessage, text string, quickReplies []platform.QuickReply,
) error {
	if err := o.store.AppendMessage(ctx, &database.Message{
		Platform: msg.Platform,
		UserID:   msg.UserID,
		Role:     database.RoleAgent,
		Content:  text,
	}); err != nil {
		return failAt(StageReplyPersisted, err)
	}

	if err := adapter.Send(ctx, msg.UserID, text, quickReplies); err != nil {
		return failAt(StageDispatched, err)
	}
	return nil
}
