// Package platform implements the messaging platform adapters for the
// SocialSync bridge. Each adapter translates platform-specific webhook
// payloads into the normalized inbound message shape and sends replies
// through the platform's Graph API endpoint.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Platform names. These double as the platform column values in the store.
const (
	Facebook  = "facebook"
	Instagram = "instagram"
	WhatsApp  = "whatsapp"
	// API is the pseudo-platform used by direct /agent_invoke calls,
	// which have no delivery channel.
	API = "api"
)

// Known returns true for the three real webhook platforms.
func Known(name string) bool {
	return name == Facebook || name == Instagram || name == WhatsApp
}

var (
	// ErrInvalidVerifyToken indicates a handshake with a wrong verify token.
	ErrInvalidVerifyToken = errors.New("invalid verify token")
	// ErrBadSignature indicates a payload whose signature does not match.
	ErrBadSignature = errors.New("bad payload signature")
	// ErrUnexpectedPayload indicates a payload not addressed to this platform.
	ErrUnexpectedPayload = errors.New("unexpected payload object")
)

// DeliveryError carries the platform's response to a failed send. It is
// recorded for observability; retries are not attempted here.
type DeliveryError struct {
	Platform   string
	StatusCode int
	Reason     string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed (status %d): %s", e.Platform, e.StatusCode, e.Reason)
}

// InboundMessage is the normalized shape of one webhook event.
//
// Echoes of the bridge's own outgoing messages, delivery confirmations,
// and read receipts are normalized with Noop set; the orchestrator
// discards them without persisting anything or invoking the agent.
// Attachment-only events on platforms that reject non-text content carry
// Unsupported instead, which is logged as a parse failure and likewise
// produces no side effects.
type InboundMessage struct {
	Platform    string
	UserID      string
	DisplayName string
	Text        string
	// MessageID is the platform-native message id, used for webhook
	// retry deduplication.
	MessageID string
	// Payload carries the quick-reply / button payload when the user
	// tapped one instead of typing.
	Payload string

	Noop        bool
	Unsupported bool
	Reason      string
}

// QuickReply is one tappable reply option attached to an outbound message.
type QuickReply struct {
	Title   string
	Payload string
}

// Adapter translates between one platform's wire formats and the
// normalized message shape.
type Adapter interface {
	// Name returns the platform name.
	Name() string

	// VerifyHandshake checks a GET verification request and returns the
	// challenge to echo back, or ErrInvalidVerifyToken.
	VerifyHandshake(query url.Values) (string, error)

	// VerifySignature validates the payload signature header against the
	// raw body. Platforms without a configured secret skip the check.
	VerifySignature(body []byte, signatureHeader string) error

	// Normalize parses a webhook delivery payload into zero or more
	// inbound messages.
	Normalize(body []byte) ([]InboundMessage, error)

	// Send delivers a text reply, optionally with quick replies, to the
	// given platform-scoped user.
	Send(ctx context.Context, userID, text string, quickReplies []QuickReply) error
}

// verifyHandshake implements the hub.challenge verification shared by all
// three Meta platforms.
func verifyHandshake(query url.Values, verifyToken string) (string, error) {
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "subscribe" && verifyToken != "" && token == verifyToken {
		return challenge, nil
	}
	return "", ErrInvalidVerifyToken
}
