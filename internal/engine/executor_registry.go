package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

const heartbeatInterval = 30 * time.Second

// RegisterExecutor records this process in the executors table and keeps its last_active
// fresh until ctx is cancelled. The returned holder string identifies this process in
// schedule claims and task leases.
func RegisterExecutor(ctx context.Context, repo ExecutorRepo, name string, clock core.Clock) (*domain.Executor, string, error) {
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "flowtrigger"
		} else {
			name = hostname
		}
	}
	now := clock.Now().UTC()
	exec := &domain.Executor{Name: name, Started: now, LastActive: now}
	id, err := repo.Save(ctx, exec)
	if err != nil {
		return nil, "", fmt.Errorf("register executor: %w", err)
	}
	holder := fmt.Sprintf("%s#%d", name, id)
	slog.InfoContext(ctx, "Registered executor", "executor_id", id, "name", name, "holder", holder)

	go func() {
		hb := time.NewTicker(heartbeatInterval)
		defer hb.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.C:
				if err := repo.UpdateLastActive(ctx, id, clock.Now().UTC()); err != nil {
					slog.Error("Failed to update executor last_active", "executor_id", id, "error", err)
				} else {
					slog.Debug("Updated executor last_active", "executor_id", id)
				}
			}
		}
	}()
	return exec, holder, nil
}
