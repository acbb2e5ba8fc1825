package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
)

// WorkerOptions tunes a WorkerPool; zero values fall back to the defaults.
type WorkerOptions struct {
	Holder       string
	Size         int
	PollInterval time.Duration
	// Lease is renewed when a run starts and every Lease/3 while it runs.
	Lease   time.Duration
	Timeout time.Duration
}

// WorkerPool is the consuming side of the task queue: it leases tasks, runs the pinned
// definition's steps and reports every step and the final status to the Tracker.
type WorkerPool struct {
	queue    TaskQueue
	tracker  *Tracker
	versions *VersionManager
	actions  *ActionRegistry
	clock    core.Clock
	opts     WorkerOptions
	tasks    chan *domain.QueueTask
	wakeup   chan struct{}
}

func NewWorkerPool(queue TaskQueue, tracker *Tracker, versions *VersionManager, actions *ActionRegistry, clock core.Clock, opts WorkerOptions) *WorkerPool {
	if opts.Size <= 0 {
		opts.Size = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Lease <= opts.Timeout {
		opts.Lease = opts.Timeout + 5*time.Minute
	}
	return &WorkerPool{
		queue:    queue,
		tracker:  tracker,
		versions: versions,
		actions:  actions,
		clock:    clock,
		opts:     opts,
		tasks:    make(chan *domain.QueueTask, opts.Size),
		wakeup:   make(chan struct{}, 1),
	}
}

// Start launches the workers and polls the queue until ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Starting worker pool", "workers", p.opts.Size, "holder", p.opts.Holder,
		"poll_interval", p.opts.PollInterval.String(), "timeout", p.opts.Timeout.String())
	for i := 0; i < p.opts.Size; i++ {
		workerCtx := context.WithValue(ctx, core.CtxKeyWorkerId, i)
		go p.worker(workerCtx, i)
	}

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Worker pool stopping due to context cancel")
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.wakeup:
			p.poll(ctx)
		}
	}
}

// Wakeup makes the pool poll now instead of at its next tick.
func (p *WorkerPool) Wakeup() {
	select {
	case p.wakeup <- struct{}{}:
	default:
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			slog.DebugContext(ctx, "Worker starting task", "worker_id", id, "execution_id", task.ExecutionID)
			p.RunTask(ctx, task)
		}
	}
}

// poll leases as many tasks as there is room for in the channel. Tasks may sit in the
// channel for a while, so RunTask renews the lease before starting them.
func (p *WorkerPool) poll(ctx context.Context) {
	free := cap(p.tasks) - len(p.tasks)
	if free <= 0 {
		slog.DebugContext(ctx, "All workers busy, skipping poll")
		return
	}
	leased, err := p.queue.Lease(ctx, p.opts.Holder, p.opts.Lease, p.clock.Now().UTC(), free)
	if err != nil {
		slog.ErrorContext(ctx, "Error leasing tasks", "error", err)
	}
	for _, task := range leased {
		p.tasks <- task
	}
}

// RunTask executes one leased task to completion. The execution always ends terminal:
// errors, panics and timeouts are all recorded as failed.
func (p *WorkerPool) RunTask(ctx context.Context, task *domain.QueueTask) {
	ctx = context.WithValue(ctx, core.CtxKeyExecutionId, task.ExecutionID)
	// tracker writes must land even after the run's own deadline fired
	trackCtx := context.WithoutCancel(ctx)

	if err := p.renewLease(trackCtx, task); errors.Is(err, repository.ErrClaimLost) {
		slog.WarnContext(ctx, "Task lease lost before start, leaving it to the new holder", "execution_id", task.ExecutionID, "task_id", task.ID)
		return
	} else if err != nil {
		slog.ErrorContext(ctx, "Unable to renew task lease", "execution_id", task.ExecutionID, "task_id", task.ID, "error", err)
	}

	if err := p.tracker.Start(trackCtx, task.ExecutionID); err != nil {
		if p.handleStartRejected(trackCtx, task, err) {
			p.complete(trackCtx, task)
		}
		return
	}
	defer p.complete(trackCtx, task)
	stopHeartbeat := p.heartbeat(ctx, task)
	defer stopHeartbeat()

	def, err := p.versions.Definition(trackCtx, task.WorkflowID, task.Version)
	if err != nil {
		p.finish(trackCtx, task.ExecutionID, domain.ExecutionFailed, fmt.Sprintf("load definition: %v", err))
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	status, detail := p.runSteps(runCtx, trackCtx, task, def)
	p.finish(trackCtx, task.ExecutionID, status, detail)
}

// handleStartRejected reports whether the task is settled and can be completed. Anything
// but a rejected transition leaves the lease to expire so the task is delivered again.
func (p *WorkerPool) handleStartRejected(ctx context.Context, task *domain.QueueTask, startErr error) bool {
	if errors.Is(startErr, ErrExecutionNotFound) {
		slog.ErrorContext(ctx, "Dropping task for unknown execution", "execution_id", task.ExecutionID)
		return true
	}
	if !errors.Is(startErr, ErrInvalidTransition) {
		slog.ErrorContext(ctx, "Unable to start execution", "execution_id", task.ExecutionID, "error", startErr)
		return false
	}
	exec, err := p.tracker.Get(ctx, task.ExecutionID)
	if err != nil {
		slog.ErrorContext(ctx, "Unable to load execution", "execution_id", task.ExecutionID, "error", err)
		return false
	}
	if exec.Status == domain.ExecutionRunning {
		// redelivered after the previous worker's lease ran out mid-run
		p.finish(ctx, exec.ID, domain.ExecutionFailed, fmt.Sprintf("abandoned by previous worker (delivery attempt %d)", task.Attempts))
		return true
	}
	slog.InfoContext(ctx, "Skipping redelivered task for finished execution", "execution_id", exec.ID, "status", exec.Status)
	return true
}

func (p *WorkerPool) runSteps(runCtx, trackCtx context.Context, task *domain.QueueTask, def *domain.WorkflowDefinition) (status domain.ExecutionStatus, detail string) {
	for _, step := range def.Steps {
		started := p.clock.Now().UTC()
		stepErr := p.runStep(runCtx, task, step)
		if stepErr == nil && runCtx.Err() != nil {
			stepErr = runCtx.Err()
		}

		record := domain.ExecutionStep{
			Name:       step.Name,
			Status:     domain.StepSucceeded,
			StartedAt:  started,
			FinishedAt: sql.NullTime{Time: p.clock.Now().UTC(), Valid: true},
		}
		if stepErr != nil {
			if errors.Is(stepErr, context.DeadlineExceeded) {
				stepErr = fmt.Errorf("timed out after %s", p.opts.Timeout)
			}
			record.Status = domain.StepFailed
			record.ErrorDetail = sql.NullString{String: stepErr.Error(), Valid: true}
		}
		if err := p.tracker.RecordStep(trackCtx, task.ExecutionID, record); err != nil {
			slog.ErrorContext(trackCtx, "Unable to record step", "execution_id", task.ExecutionID, "step", step.Name, "error", err)
		}
		if stepErr != nil {
			return domain.ExecutionFailed, fmt.Sprintf("step %s: %v", step.Name, stepErr)
		}
	}
	return domain.ExecutionSucceeded, ""
}

func (p *WorkerPool) runStep(ctx context.Context, task *domain.QueueTask, step domain.StepDefinition) (err error) {
	action, ok := p.actions.Lookup(step.Action)
	if !ok {
		return fmt.Errorf("unknown action %q", step.Action)
	}
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Action panicked", "execution_id", task.ExecutionID, "step", step.Name,
				"panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action(ctx, ActionInput{
		ExecutionID: task.ExecutionID,
		WorkflowID:  task.WorkflowID,
		Version:     task.Version,
		Step:        step.Name,
		Params:      step.Params,
		Payload:     task.Payload,
	})
}

func (p *WorkerPool) finish(ctx context.Context, executionID string, status domain.ExecutionStatus, detail string) {
	err := p.tracker.Finish(ctx, executionID, status, detail)
	if err != nil && !IsBenignTrackerError(err) {
		slog.ErrorContext(ctx, "Unable to finish execution", "execution_id", executionID, "status", status, "error", err)
	}
}

func (p *WorkerPool) renewLease(ctx context.Context, task *domain.QueueTask) error {
	return p.queue.Extend(ctx, task.ID, p.opts.Holder, p.clock.Now().UTC().Add(p.opts.Lease))
}

// heartbeat keeps renewing the task lease until the returned stop is called.
func (p *WorkerPool) heartbeat(ctx context.Context, task *domain.QueueTask) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.opts.Lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.renewLease(ctx, task); err != nil {
					slog.WarnContext(ctx, "Unable to renew task lease", "execution_id", task.ExecutionID, "task_id", task.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (p *WorkerPool) complete(ctx context.Context, task *domain.QueueTask) {
	err := p.queue.Complete(ctx, task.ID, p.opts.Holder)
	if errors.Is(err, repository.ErrClaimLost) {
		slog.WarnContext(ctx, "Task lease lost before completion", "execution_id", task.ExecutionID, "task_id", task.ID)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Unable to complete task", "execution_id", task.ExecutionID, "task_id", task.ID, "error", err)
	}
}
