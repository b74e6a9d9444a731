package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/socialsync/socialsync/internal/database"
)

// Task names as they appear under scheduler.tasks in the configuration.
const (
	TaskDBMaintenance = "db_maintenance"
	TaskSessionSweep  = "session_sweep"
)

// BuildTasks returns the registry of background tasks the bridge knows
// how to run. idleTimeout is the session expiry used by the sweep.
func BuildTasks(store database.Store, idleTimeout time.Duration, logger *slog.Logger) map[string]TaskFunc {
	log := logger.With("component", "tasks")

	return map[string]TaskFunc{
		TaskDBMaintenance: func(ctx context.Context) error {
			return store.RunMaintenance(ctx)
		},
		TaskSessionSweep: func(ctx context.Context) error {
			cutoff := time.Now().Add(-idleTimeout)
			removed, err := store.DeleteIdleSessions(ctx, cutoff)
			if err != nil {
				return err
			}
			if removed > 0 {
				log.InfoContext(ctx, "Swept idle sessions", "removed", removed)
			}
			return nil
		},
	}
}
