// Package database_test exercises the store against a real SQLite file.
package database_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/socialsync/socialsync/internal/database"
	"github.com/socialsync/socialsync/internal/platform"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestUpsertUser(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.UpsertUser(ctx, platform.Facebook, "u1", "Asha")
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if user.MessageCount != 1 {
		t.Errorf("message_count = %d, want 1", user.MessageCount)
	}
	if user.DisplayName != "Asha" {
		t.Errorf("display_name = %q, want Asha", user.DisplayName)
	}

	// A second contact bumps the counter and keeps the name when the
	// payload carries none.
	user, err = store.UpsertUser(ctx, platform.Facebook, "u1", "")
	if err != nil {
		t.Fatalf("UpsertUser (second): %v", err)
	}
	if user.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", user.MessageCount)
	}
	if user.DisplayName != "Asha" {
		t.Errorf("display_name = %q, want Asha preserved", user.DisplayName)
	}

	// Same external id on another platform is a distinct user.
	other, err := store.UpsertUser(ctx, platform.Instagram, "u1", "")
	if err != nil {
		t.Fatalf("UpsertUser (other platform): %v", err)
	}
	if other.MessageCount != 1 {
		t.Errorf("other platform message_count = %d, want 1", other.MessageCount)
	}
}

func TestGetUserMissing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	user, err := store.GetUser(context.Background(), platform.Facebook, "nobody")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestSetUserLanguage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertUser(ctx, platform.WhatsApp, "u1", ""); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := store.SetUserLanguage(ctx, platform.WhatsApp, "u1", "ta"); err != nil {
		t.Fatalf("SetUserLanguage: %v", err)
	}

	user, err := store.GetUser(ctx, platform.WhatsApp, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.PreferredLanguage != "ta" {
		t.Errorf("preferred_language = %q, want ta", user.PreferredLanguage)
	}

	if err := store.SetUserLanguage(ctx, platform.WhatsApp, "ghost", "en"); err == nil {
		t.Error("expected error setting language for unknown user")
	}
}

func TestAppendMessageSequence(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertUser(ctx, platform.Facebook, "u1", ""); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	for i, content := range []string{"first", "second", "third"} {
		msg := &database.Message{
			Platform: platform.Facebook,
			UserID:   "u1",
			Role:     database.RoleUser,
			Content:  content,
		}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
		if want := int64(i + 1); msg.Sequence != want {
			t.Errorf("sequence = %d, want %d", msg.Sequence, want)
		}
	}

	// Appending for a user that was never upserted must fail rather than
	// invent a row.
	err := store.AppendMessage(ctx, &database.Message{
		Platform: platform.Facebook,
		UserID:   "ghost",
		Role:     database.RoleUser,
		Content:  "hi",
	})
	if err == nil {
		t.Error("expected error appending for unknown user")
	}
}

func TestAppendMessageConcurrent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertUser(ctx, platform.Facebook, "u1", ""); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.AppendMessage(ctx, &database.Message{
				Platform: platform.Facebook,
				UserID:   "u1",
				Role:     database.RoleUser,
				Content:  "concurrent",
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent AppendMessage: %v", err)
		}
	}

	history, err := store.GetHistory(ctx, platform.Facebook, "u1", writers)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != writers {
		t.Fatalf("got %d messages, want %d", len(history), writers)
	}

	// Sequences must be a gap-free descending run.
	for i, msg := range history {
		if want := int64(writers - i); msg.Sequence != want {
			t.Errorf("history[%d].Sequence = %d, want %d", i, msg.Sequence, want)
		}
	}
}

func TestHasPlatformMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertUser(ctx, platform.Facebook, "u1", ""); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := store.AppendMessage(ctx, &database.Message{
		Platform:          platform.Facebook,
		UserID:            "u1",
		Role:              database.RoleUser,
		Content:           "hello",
		PlatformMessageID: "mid.1",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	seen, err := store.HasPlatformMessage(ctx, platform.Facebook, "u1", "mid.1")
	if err != nil {
		t.Fatalf("HasPlatformMessage: %v", err)
	}
	if !seen {
		t.Error("expected mid.1 to be seen")
	}

	seen, err = store.HasPlatformMessage(ctx, platform.Facebook, "u1", "mid.2")
	if err != nil {
		t.Fatalf("HasPlatformMessage: %v", err)
	}
	if seen {
		t.Error("mid.2 should not be seen")
	}

	// Empty ids never match; agent replies have none.
	seen, err = store.HasPlatformMessage(ctx, platform.Facebook, "u1", "")
	if err != nil {
		t.Fatalf("HasPlatformMessage (empty): %v", err)
	}
	if seen {
		t.Error("empty platform message id should never match")
	}
}

func TestGetHistoryLimitAndOrder(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertUser(ctx, platform.Facebook, "u1", ""); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	for _, content := range []string{"one", "two", "three", "four"} {
		if err := store.AppendMessage(ctx, &database.Message{
			Platform: platform.Facebook,
			UserID:   "u1",
			Role:     database.RoleUser,
			Content:  content,
		}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	history, err := store.GetHistory(ctx, platform.Facebook, "u1", 2)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d messages, want 2", len(history))
	}
	if history[0].Content != "four" || history[1].Content != "three" {
		t.Errorf("unexpected order: %q, %q", history[0].Content, history[1].Content)
	}
}

func TestSessions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session, err := store.GetSession(ctx, platform.Facebook, "u1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session, got %+v", session)
	}

	if err := store.PutSession(ctx, &database.Session{
		Platform:       platform.Facebook,
		UserID:         "u1",
		AgentSessionID: "sess-1",
	}); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	session, err = store.GetSession(ctx, platform.Facebook, "u1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session == nil || session.AgentSessionID != "sess-1" {
		t.Fatalf("unexpected session: %+v", session)
	}

	// Upsert replaces in place.
	if err := store.PutSession(ctx, &database.Session{
		Platform:       platform.Facebook,
		UserID:         "u1",
		AgentSessionID: "sess-2",
	}); err != nil {
		t.Fatalf("PutSession (replace): %v", err)
	}
	session, err = store.GetSession(ctx, platform.Facebook, "u1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.AgentSessionID != "sess-2" {
		t.Errorf("agent_session_id = %q, want sess-2", session.AgentSessionID)
	}
}

func TestDeleteIdleSessions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.PutSession(ctx, &database.Session{
		Platform:       platform.Facebook,
		UserID:         "stale",
		AgentSessionID: "sess-old",
		LastActivityAt: now.Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("PutSession (stale): %v", err)
	}
	if err := store.PutSession(ctx, &database.Session{
		Platform:       platform.Facebook,
		UserID:         "active",
		AgentSessionID: "sess-new",
		LastActivityAt: now,
	}); err != nil {
		t.Fatalf("PutSession (active): %v", err)
	}

	removed, err := store.DeleteIdleSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteIdleSessions: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	session, err := store.GetSession(ctx, platform.Facebook, "active")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session == nil {
		t.Error("active session should survive the sweep")
	}
}

func TestListUsers(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		if _, err := store.UpsertUser(ctx, platform.Facebook, id, ""); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}
	if _, err := store.UpsertUser(ctx, platform.WhatsApp, "w1", ""); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	users, err := store.ListUsers(ctx, platform.Facebook)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("got %d facebook users, want 2", len(users))
	}
}

func TestRunMaintenance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	if err := store.RunMaintenance(context.Background()); err != nil {
		t.Fatalf("RunMaintenance: %v", err)
	}
}
