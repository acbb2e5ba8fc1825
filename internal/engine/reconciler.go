package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

// Reconciler is the opt-in sweep that fails executions whose worker never reported back.
// The Tracker itself never expires anything; only this sweep does, and only when enabled.
type Reconciler struct {
	executions   ExecutionRepo
	tracker      *Tracker
	clock        core.Clock
	runningAfter time.Duration
	interval     time.Duration
}

func NewReconciler(executions ExecutionRepo, tracker *Tracker, clock core.Clock, runningAfter, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{executions: executions, tracker: tracker, clock: clock, runningAfter: runningAfter, interval: interval}
}

// Enabled reports whether a running threshold was configured.
func (r *Reconciler) Enabled() bool {
	return r.runningAfter > 0
}

func (r *Reconciler) Start(ctx context.Context) {
	if !r.Enabled() {
		slog.InfoContext(ctx, "Execution reconciliation disabled")
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Reconciler stopping due to context cancel")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "Error sweeping stale executions", "error", err)
			}
		}
	}
}

// Sweep marks executions running for longer than the threshold as failed and returns how
// many it moved.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}
	cutoff := r.clock.Now().UTC().Add(-r.runningAfter)
	stale, err := r.executions.FindRunningStartedBefore(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, e := range stale {
		slog.WarnContext(ctx, "Reconciling stale execution", "execution_id", e.ID, "workflow_id", e.WorkflowID,
			"started_at", e.StartedAt.Time)
		detail := fmt.Sprintf("no completion callback within %s", r.runningAfter)
		err := r.tracker.Finish(ctx, e.ID, domain.ExecutionFailed, detail)
		if err != nil {
			if IsBenignTrackerError(err) {
				continue // finished on its own meanwhile
			}
			return failed, err
		}
		failed++
	}
	return failed, nil
}
