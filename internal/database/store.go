package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the data access interface used by the orchestrator and
// the HTTP handlers. All methods accept a context for cancellation.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertUser creates the user on first contact or bumps last_seen_at
	// and message_count on subsequent messages. Idempotent per
	// (platform, user_id). Returns the stored row.
	UpsertUser(ctx context.Context, platform, userID, displayName string) (*User, error)

	// GetUser retrieves a user. Returns nil, nil when not found.
	GetUser(ctx context.Context, platform, userID string) (*User, error)

	// ListUsers returns all users for a platform.
	ListUsers(ctx context.Context, platform string) ([]User, error)

	// SetUserLanguage stores the user's preferred language.
	SetUserLanguage(ctx context.Context, platform, userID, language string) error

	// AppendMessage inserts a message, assigning the user's next sequence
	// number atomically. The assigned sequence is written back to msg.
	AppendMessage(ctx context.Context, msg *Message) error

	// HasPlatformMessage reports whether a message with the given
	// platform-native id has already been persisted for this user.
	HasPlatformMessage(ctx context.Context, platform, userID, platformMessageID string) (bool, error)

	// GetHistory returns up to limit messages for a user, most recent
	// first by sequence.
	GetHistory(ctx context.Context, platform, userID string, limit int) ([]Message, error)

	// GetSession retrieves a user's agent session. Returns nil, nil when
	// none exists.
	GetSession(ctx context.Context, platform, userID string) (*Session, error)

	// PutSession inserts or replaces a user's agent session.
	PutSession(ctx context.Context, session *Session) error

	// DeleteIdleSessions removes sessions whose last activity predates
	// cutoff. Returns the number of sessions removed.
	DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int64, error)

	// RunMaintenance performs database maintenance (VACUUM).
	RunMaintenance(ctx context.Context) error
}

// sqlxStore implements Store backed by sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) UpsertUser(ctx context.Context, platform, userID, displayName string) (*User, error) {
	if platform == "" || userID == "" {
		return nil, fmt.Errorf("platform and user_id are required")
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO users (platform, user_id, display_name, message_count, last_sequence, first_seen_at, last_seen_at)
        VALUES (?, ?, ?, 1, 0, ?, ?)
        ON CONFLICT (platform, user_id) DO UPDATE SET
            message_count = message_count + 1,
            last_seen_at = excluded.last_seen_at,
            display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE display_name END;
    `

	if _, err := s.db.ExecContext(ctx, query, platform, userID, displayName, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting user", "platform", platform, "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to upsert user %s/%s: %w", platform, userID, err)
	}

	return s.GetUser(ctx, platform, userID)
}

func (s *sqlxStore) GetUser(ctx context.Context, platform, userID string) (*User, error) {
	var user User
	query := `SELECT id, platform, user_id, display_name, preferred_language, message_count, last_sequence, first_seen_at, last_seen_at
	          FROM users WHERE platform = ? AND user_id = ?`

	err := s.db.GetContext(ctx, &user, query, platform, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "platform", platform, "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get user %s/%s: %w", platform, userID, err)
	}

	return &user, nil
}

func (s *sqlxStore) ListUsers(ctx context.Context, platform string) ([]User, error) {
	var users []User
	query := `SELECT id, platform, user_id, display_name, preferred_language, message_count, last_sequence, first_seen_at, last_seen_at
	          FROM users WHERE platform = ? ORDER BY last_seen_at DESC`

	if err := s.db.SelectContext(ctx, &users, query, platform); err != nil {
		s.logger.ErrorContext(ctx, "Error listing users", "platform", platform, "error", err)
		return nil, fmt.Errorf("failed to list users for %s: %w", platform, err)
	}

	return users, nil
}

func (s *sqlxStore) SetUserLanguage(ctx context.Context, platform, userID, language string) error {
	query := `UPDATE users SET preferred_language = ? WHERE platform = ? AND user_id = ?`
	result, err := s.db.ExecContext(ctx, query, language, platform, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error setting user language", "platform", platform, "user_id", userID, "error", err)
		return fmt.Errorf("failed to set language for user %s/%s: %w", platform, userID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("no user %s/%s to set language for", platform, userID)
	}

	return nil
}

// AppendMessage assigns the next per-user sequence and inserts the message
// in a single transaction. The users row owns the sequence counter, so
// concurrent appends for the same user cannot produce gaps or duplicates.
func (s *sqlxStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("cannot append nil message")
	}
	if msg.Platform == "" || msg.UserID == "" {
		return fmt.Errorf("message must have platform and user_id")
	}
	if msg.Role != RoleUser && msg.Role != RoleAgent {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for message append",
			"platform", msg.Platform, "user_id", msg.UserID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var seq int64
	err = tx.GetContext(ctx, &seq, `
        UPDATE users SET last_sequence = last_sequence + 1
        WHERE platform = ? AND user_id = ?
        RETURNING last_sequence;
    `, msg.Platform, msg.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no user %s/%s to append message for", msg.Platform, msg.UserID)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error assigning message sequence",
			"platform", msg.Platform, "user_id", msg.UserID, "error", err)
		return fmt.Errorf("failed to assign sequence for user %s/%s: %w", msg.Platform, msg.UserID, err)
	}
	msg.Sequence = seq

	result, err := tx.NamedExecContext(ctx, `
        INSERT INTO messages (platform, user_id, role, content, platform_message_id, sequence, created_at)
        VALUES (:platform, :user_id, :role, :content, :platform_message_id, :sequence, :created_at);
    `, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"platform", msg.Platform, "user_id", msg.UserID, "error", err)
		return fmt.Errorf("failed to save message for user %s/%s: %w", msg.Platform, msg.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		msg.ID = uint(id)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit message append",
			"platform", msg.Platform, "user_id", msg.UserID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message appended",
		"platform", msg.Platform, "user_id", msg.UserID, "role", msg.Role, "sequence", msg.Sequence)
	return nil
}

func (s *sqlxStore) HasPlatformMessage(ctx context.Context, platform, userID, platformMessageID string) (bool, error) {
	if platformMessageID == "" {
		return false, nil
	}

	var exists bool
	query := `SELECT EXISTS (
	              SELECT 1 FROM messages
	              WHERE platform = ? AND user_id = ? AND platform_message_id = ?
	          )`

	if err := s.db.GetContext(ctx, &exists, query, platform, userID, platformMessageID); err != nil {
		s.logger.ErrorContext(ctx, "Error checking message dedup",
			"platform", platform, "user_id", userID, "platform_message_id", platformMessageID, "error", err)
		return false, fmt.Errorf("failed dedup check for user %s/%s: %w", platform, userID, err)
	}

	return exists, nil
}

func (s *sqlxStore) GetHistory(ctx context.Context, platform, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var messages []Message
	query := `
        SELECT id, platform, user_id, role, content, platform_message_id, sequence, created_at
        FROM messages
        WHERE platform = ? AND user_id = ?
        ORDER BY sequence DESC
        LIMIT ?;
    `

	if err := s.db.SelectContext(ctx, &messages, query, platform, userID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting history",
			"platform", platform, "user_id", userID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get history for user %s/%s: %w", platform, userID, err)
	}

	return messages, nil
}

func (s *sqlxStore) GetSession(ctx context.Context, platform, userID string) (*Session, error) {
	var session Session
	query := `SELECT id, platform, user_id, agent_session_id, last_activity_at
	          FROM sessions WHERE platform = ? AND user_id = ?`

	err := s.db.GetContext(ctx, &session, query, platform, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting session", "platform", platform, "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get session for user %s/%s: %w", platform, userID, err)
	}

	return &session, nil
}

func (s *sqlxStore) PutSession(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("cannot put nil session")
	}
	if session.LastActivityAt.IsZero() {
		session.LastActivityAt = time.Now().UTC()
	}

	query := `
        INSERT INTO sessions (platform, user_id, agent_session_id, last_activity_at)
        VALUES (:platform, :user_id, :agent_session_id, :last_activity_at)
        ON CONFLICT (platform, user_id) DO UPDATE SET
            agent_session_id = excluded.agent_session_id,
            last_activity_at = excluded.last_activity_at;
    `

	if _, err := s.db.NamedExecContext(ctx, query, session); err != nil {
		s.logger.ErrorContext(ctx, "Error saving session",
			"platform", session.Platform, "user_id", session.UserID, "error", err)
		return fmt.Errorf("failed to save session for user %s/%s: %w", session.Platform, session.UserID, err)
	}

	return nil
}

func (s *sqlxStore) DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity_at < ?`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting idle sessions", "error", err)
		return 0, fmt.Errorf("failed to delete idle sessions: %w", err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		s.logger.InfoContext(ctx, "Deleted idle sessions", "count", count)
	}
	return count, nil
}

// RunMaintenance executes VACUUM. SQLite requires it to run outside a
// transaction.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
