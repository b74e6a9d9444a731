package database

import "time"

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// User represents one end user on one platform. A user is created on
// their first inbound message and updated on every subsequent one.
type User struct {
	ID                uint      `db:"id"                 json:"-"`
	Platform          string    `db:"platform"           json:"platform"`
	UserID            string    `db:"user_id"            json:"user_id"`
	DisplayName       string    `db:"display_name"       json:"display_name,omitempty"`
	PreferredLanguage string    `db:"preferred_language" json:"preferred_language,omitempty"`
	MessageCount      int64     `db:"message_count"      json:"message_count"`
	LastSequence      int64     `db:"last_sequence"      json:"-"`
	FirstSeenAt       time.Time `db:"first_seen_at"      json:"first_seen_at"`
	LastSeenAt        time.Time `db:"last_seen_at"       json:"last_seen_at"`
}

// Message is one entry in a user's conversation log. Messages are
// append-only; Sequence is assigned by the store and is strictly
// increasing per (platform, user).
type Message struct {
	ID                uint      `db:"id"                  json:"-"`
	Platform          string    `db:"platform"            json:"platform"`
	UserID            string    `db:"user_id"             json:"user_id"`
	Role              string    `db:"role"                json:"role"`
	Content           string    `db:"content"             json:"content"`
	PlatformMessageID string    `db:"platform_message_id" json:"platform_message_id,omitempty"`
	Sequence          int64     `db:"sequence"            json:"sequence"`
	CreatedAt         time.Time `db:"created_at"          json:"created_at"`
}

// Session tracks continuity with the agent backend for one user. At most
// one session exists per (platform, user) at a time.
type Session struct {
	ID             uint      `db:"id"`
	Platform       string    `db:"platform"`
	UserID         string    `db:"user_id"`
	AgentSessionID string    `db:"agent_session_id"`
	LastActivityAt time.Time `db:"last_activity_at"`
}
