package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/cronexpr"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
	"golang.org/x/sync/errgroup"
)

// RunDispatcher is the dispatcher as the scheduler and webhook gateway see it.
type RunDispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.Execution, error)
}

// SchedulerOptions tunes a Scheduler; zero values fall back to the defaults.
type SchedulerOptions struct {
	Holder      string
	Interval    time.Duration
	ClaimTTL    time.Duration
	BatchSize   int
	Parallelism int
}

// Scheduler polls the trigger store for due schedules and dispatches them. Any number of
// schedulers may run against the same store; the claim is the only coordination.
type Scheduler struct {
	schedules  ScheduleRepo
	versions   *VersionManager
	dispatcher RunDispatcher
	clock      core.Clock
	metrics    *Metrics
	opts       SchedulerOptions
}

// TickResult summarizes one tick.
type TickResult struct {
	Due        int
	Claimed    int
	Dispatched int
	Failed     int
}

func NewScheduler(schedules ScheduleRepo, versions *VersionManager, dispatcher RunDispatcher, clock core.Clock, metrics *Metrics, opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 3 * opts.Interval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 8
	}
	return &Scheduler{
		schedules:  schedules,
		versions:   versions,
		dispatcher: dispatcher,
		clock:      clock,
		metrics:    orNoop(metrics),
		opts:       opts,
	}
}

// Start runs a tick every interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Scheduler started", "holder", s.opts.Holder, "interval", s.opts.Interval.String(),
		"claim_ttl", s.opts.ClaimTTL.String())
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Scheduler stopping due to context cancel")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every due schedule once. Schedules are processed concurrently and
// independently; a failure on one never stops the others.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	now := s.clock.Now().UTC()
	due, err := s.schedules.ListDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Error listing due schedules", "error", err)
		return TickResult{}
	}
	if len(due) == 0 {
		slog.DebugContext(ctx, "No due schedules")
		return TickResult{}
	}
	s.metrics.add(ctx, s.metrics.dueSchedules, int64(len(due)))

	var claimed, dispatched, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.opts.Parallelism)
	for _, sched := range due {
		g.Go(func() error {
			switch s.process(ctx, sched, now) {
			case outcomeDispatched:
				claimed.Add(1)
				dispatched.Add(1)
			case outcomeFailed:
				claimed.Add(1)
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := TickResult{Due: len(due), Claimed: int(claimed.Load()), Dispatched: int(dispatched.Load()), Failed: int(failed.Load())}
	slog.InfoContext(ctx, "Scheduler tick finished", "due", result.Due, "claimed", result.Claimed,
		"dispatched", result.Dispatched, "failed", result.Failed)
	return result
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDispatched
	outcomeFailed
)

func (s *Scheduler) process(ctx context.Context, sched *domain.WorkflowSchedule, now time.Time) outcome {
	holder := s.opts.Holder
	ok, err := s.schedules.TryClaim(ctx, sched.WorkflowID, holder, s.opts.ClaimTTL, now)
	if err != nil {
		slog.ErrorContext(ctx, "Error claiming schedule", "workflow_id", sched.WorkflowID, "error", err)
		return outcomeSkipped
	}
	if !ok {
		s.metrics.add(ctx, s.metrics.claimContention, 1)
		slog.DebugContext(ctx, "Schedule claimed by another holder", "workflow_id", sched.WorkflowID)
		return outcomeSkipped
	}

	next, err := cronexpr.NextOccurrence(sched.CronExpression, sched.Timezone, now)
	if err != nil {
		// validated on write, so this is stored data gone bad
		slog.ErrorContext(ctx, "Stored schedule no longer evaluates", "workflow_id", sched.WorkflowID,
			"cron", sched.CronExpression, "timezone", sched.Timezone, "error", err)
		s.release(ctx, sched.WorkflowID)
		return outcomeFailed
	}

	version, err := s.versions.CurrentVersion(ctx, sched.WorkflowID)
	if err != nil {
		slog.ErrorContext(ctx, "Cannot pin version for scheduled run", "workflow_id", sched.WorkflowID, "error", err)
		s.release(ctx, sched.WorkflowID)
		return outcomeFailed
	}

	exec, err := s.dispatcher.Dispatch(ctx, domain.DispatchRequest{
		WorkflowID:  sched.WorkflowID,
		Version:     version.Version,
		Source:      domain.TriggerSchedule,
		ScheduledAt: sched.NextRunAt.Time,
	})
	if err != nil {
		// next_run_at stays put so the same occurrence is retried
		slog.WarnContext(ctx, "Dispatch failed, releasing claim for retry", "workflow_id", sched.WorkflowID,
			"occurrence", sched.NextRunAt.Time, "error", err)
		s.release(ctx, sched.WorkflowID)
		return outcomeFailed
	}

	if err := s.schedules.CommitRun(ctx, sched.WorkflowID, holder, sched.Modified, next, now); err != nil {
		if errors.Is(err, repository.ErrClaimLost) {
			// the dispatch is idempotent on the occurrence, whoever holds the claim now will collapse onto it
			slog.WarnContext(ctx, "Claim expired before commit", "workflow_id", sched.WorkflowID, "execution_id", exec.ID)
		} else {
			slog.ErrorContext(ctx, "Error committing schedule run", "workflow_id", sched.WorkflowID, "error", err)
		}
		return outcomeDispatched
	}
	slog.InfoContext(ctx, "Schedule fired", "workflow_id", sched.WorkflowID, "execution_id", exec.ID,
		"occurrence", sched.NextRunAt.Time, "next_run_at", next)
	return outcomeDispatched
}

func (s *Scheduler) release(ctx context.Context, workflowID string) {
	if err := s.schedules.ReleaseClaim(ctx, workflowID, s.opts.Holder); err != nil {
		// the TTL frees it eventually
		slog.ErrorContext(ctx, "Error releasing schedule claim", "workflow_id", workflowID, "error", err)
	}
}
