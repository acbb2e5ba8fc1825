package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

// Tracker owns execution state after dispatch. Status only moves forward:
//
//	pending -> running -> succeeded | failed | cancelled
//	pending -> failed | cancelled
//
// Every transition is a compare-and-swap on the stored status, so duplicate or racing
// callbacks from retried workers resolve to ErrInvalidTransition without touching state.
type Tracker struct {
	executions ExecutionRepo
	clock      core.Clock
	metrics    *Metrics
}

func NewTracker(executions ExecutionRepo, clock core.Clock, metrics *Metrics) *Tracker {
	return &Tracker{executions: executions, clock: clock, metrics: orNoop(metrics)}
}

func (t *Tracker) Get(ctx context.Context, id string) (*domain.Execution, error) {
	e, err := t.executions.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	return e, err
}

func (t *Tracker) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*domain.Execution, error) {
	return t.executions.ListByWorkflow(ctx, workflowID, limit)
}

// Start moves a pending execution to running.
func (t *Tracker) Start(ctx context.Context, id string) error {
	return t.transition(ctx, id, domain.ExecutionRunning, "")
}

// RecordStep appends step to the execution's log. It fails with ErrExecutionNotRunning
// outside the running window.
func (t *Tracker) RecordStep(ctx context.Context, id string, step domain.ExecutionStep) error {
	if strings.TrimSpace(step.Name) == "" || !step.Status.Valid() {
		return fmt.Errorf("%w: name %q status %q", ErrInvalidStepRequest, step.Name, step.Status)
	}
	step.ExecutionID = id
	if step.StartedAt.IsZero() {
		step.StartedAt = t.clock.Now()
	}
	step.StartedAt = step.StartedAt.UTC()
	if step.FinishedAt.Valid {
		step.FinishedAt.Time = step.FinishedAt.Time.UTC()
	}

	ok, err := t.executions.AppendStep(ctx, &step)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return err
	}
	if !ok {
		t.metrics.add(ctx, t.metrics.rejectedCallback, 1, attribute.String("call", "record_step"))
		slog.InfoContext(ctx, "Rejected step for execution that is not running", "execution_id", id, "step", step.Name)
		return fmt.Errorf("%w: %s", ErrExecutionNotRunning, id)
	}
	slog.DebugContext(ctx, "Recorded step", "execution_id", id, "step", step.Name, "status", step.Status)
	return nil
}

// Finish moves the execution to the terminal status. errorDetail is stored when non-empty.
func (t *Tracker) Finish(ctx context.Context, id string, status domain.ExecutionStatus, errorDetail string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidTransition, status)
	}
	return t.transition(ctx, id, status, errorDetail)
}

// allowed reports whether from -> to is an edge of the status machine.
func allowed(from, to domain.ExecutionStatus) bool {
	switch from {
	case domain.ExecutionPending:
		return to == domain.ExecutionRunning || to == domain.ExecutionFailed || to == domain.ExecutionCancelled
	case domain.ExecutionRunning:
		return to.IsTerminal()
	}
	return false
}

func (t *Tracker) transition(ctx context.Context, id string, to domain.ExecutionStatus, errorDetail string) error {
	current, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if !allowed(current.Status, to) {
		return t.reject(ctx, id, current.Status, to)
	}

	detail := sql.NullString{String: errorDetail, Valid: errorDetail != ""}
	ok, err := t.executions.UpdateStatus(ctx, id, current.Status, to, t.clock.Now().UTC(), detail)
	if err != nil {
		return err
	}
	if !ok {
		// someone else moved it between our read and the update
		latest, err := t.Get(ctx, id)
		if err != nil {
			return err
		}
		return t.reject(ctx, id, latest.Status, to)
	}

	t.metrics.add(ctx, t.metrics.transitions, 1, attribute.String("from", string(current.Status)), attribute.String("to", string(to)))
	if to == domain.ExecutionFailed {
		slog.WarnContext(ctx, "Execution failed", "execution_id", id, "workflow_id", current.WorkflowID, "error", errorDetail)
	} else {
		slog.InfoContext(ctx, "Execution status changed", "execution_id", id, "workflow_id", current.WorkflowID,
			"from", current.Status, "to", to)
	}
	return nil
}

func (t *Tracker) reject(ctx context.Context, id string, from, to domain.ExecutionStatus) error {
	t.metrics.add(ctx, t.metrics.rejectedCallback, 1, attribute.String("call", string(to)))
	slog.InfoContext(ctx, "Rejected execution transition", "execution_id", id, "from", from, "to", to)
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, from, to)
}
