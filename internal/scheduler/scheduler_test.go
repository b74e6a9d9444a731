package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/socialsync/socialsync/internal/config"
	"github.com/socialsync/socialsync/internal/database"
	"github.com/socialsync/socialsync/internal/platform"
	"github.com/socialsync/socialsync/internal/scheduler"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()

	cfg := &config.SchedulerConfig{
		Tasks: map[string]config.TaskConfig{
			"registered":   {Enabled: true, Schedule: "0 0 4 * * *"},
			"disabled":     {Enabled: false, Schedule: "0 0 4 * * *"},
			"unregistered": {Enabled: true, Schedule: "0 0 4 * * *"},
			"no_schedule":  {Enabled: true},
		},
	}
	tasks := map[string]scheduler.TaskFunc{
		"registered": func(context.Context) error { return nil },
	}

	s, err := scheduler.NewScheduler(discardLogger(), cfg, tasks)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail while running")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stopping an already stopped scheduler is a no-op.
	if err := s.Stop(); err != nil {
		t.Errorf("repeated Stop: %v", err)
	}
}

func TestBuildTasks(t *testing.T) {
	t.Parallel()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, discardLogger())

	tasks := scheduler.BuildTasks(store, time.Hour, discardLogger())
	for _, name := range []string{scheduler.TaskDBMaintenance, scheduler.TaskSessionSweep} {
		if _, ok := tasks[name]; !ok {
			t.Fatalf("task %q not registered", name)
		}
	}

	ctx := context.Background()
	if err := store.PutSession(ctx, &database.Session{
		Platform:       platform.Facebook,
		UserID:         "stale",
		AgentSessionID: "sess-1",
		LastActivityAt: time.Now().Add(-2 * time.Hour),
	}); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	if err := tasks[scheduler.TaskSessionSweep](ctx); err != nil {
		t.Fatalf("session sweep: %v", err)
	}
	session, err := store.GetSession(ctx, platform.Facebook, "stale")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session != nil {
		t.Error("stale session should have been swept")
	}

	if err := tasks[scheduler.TaskDBMaintenance](ctx); err != nil {
		t.Fatalf("db maintenance: %v", err)
	}
}
