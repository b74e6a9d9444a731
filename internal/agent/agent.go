// Package agent wraps the generative backend behind a single invoke
// interface with session continuity. Two providers are available: AWS
// Bedrock Agent Runtime (the default, with server-side session memory)
// and Gemini (stateless per call, relying on seed context).
package agent

import (
	"context"
	"errors"
)

// Seed roles, matching the stored message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is one prior conversation turn replayed as seed context when a
// fresh agent session starts.
type Turn struct {
	Role string
	Text string
}

// ErrEmptyReply indicates the backend produced no usable text.
var ErrEmptyReply = errors.New("agent returned an empty reply")

// Invoker is the generative backend interface. Invoke sends the user's
// text under the given session and returns the reply plus the session id
// to persist for the next turn. seed carries prior turns for providers
// without server-side memory; providers with their own session state may
// ignore it.
type Invoker interface {
	Invoke(ctx context.Context, userID, sessionID, text string, seed []Turn) (reply string, newSessionID string, err error)
}
