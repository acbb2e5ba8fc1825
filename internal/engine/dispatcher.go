package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher turns a dispatch request into a pending execution plus one queue submission.
type Dispatcher struct {
	executions ExecutionRepo
	queue      TaskQueue
	versions   *VersionManager
	clock      core.Clock
	metrics    *Metrics
	// wakeup, when set, is poked after a successful submission so a local worker pool
	// can lease immediately instead of waiting for its next poll.
	wakeup func()
}

func NewDispatcher(executions ExecutionRepo, queue TaskQueue, versions *VersionManager, clock core.Clock, metrics *Metrics) *Dispatcher {
	return &Dispatcher{executions: executions, queue: queue, versions: versions, clock: clock, metrics: orNoop(metrics)}
}

// OnSubmit registers fn to run after every accepted submission.
func (d *Dispatcher) OnSubmit(fn func()) {
	d.wakeup = fn
}

// IdempotencyKey derives the key identifying one logical run. Schedule runs are keyed by
// the occurrence they fire, webhook and manual runs by their delivery id.
func IdempotencyKey(req domain.DispatchRequest) string {
	if req.Source == domain.TriggerSchedule {
		return fmt.Sprintf("%s:%s:%s", req.WorkflowID, req.Source, req.ScheduledAt.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s:%s:%s", req.WorkflowID, req.Source, req.DeliveryID)
}

// Dispatch creates the pending execution (or finds the one already created for the same
// idempotency key) and submits it to the queue under that key. Any submission failure is
// returned wrapped in ErrQueueUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.Execution, error) {
	if !req.Source.Valid() {
		return nil, fmt.Errorf("unknown trigger source %q", req.Source)
	}
	if req.Source == domain.TriggerSchedule && req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("schedule dispatch for %s has no scheduled instant", req.WorkflowID)
	}
	if req.Source != domain.TriggerSchedule && req.DeliveryID == "" {
		req.DeliveryID = uuid.NewString()
	}
	if req.Version == 0 {
		v, err := d.versions.CurrentVersion(ctx, req.WorkflowID)
		if err != nil {
			return nil, err
		}
		req.Version = v.Version
	} else if _, err := d.versions.GetVersion(ctx, req.WorkflowID, req.Version); err != nil {
		return nil, err
	}

	key := IdempotencyKey(req)
	now := d.clock.Now().UTC()
	exec, created, err := d.executions.CreateOrGet(ctx, &domain.Execution{
		ID:              uuid.NewString(),
		WorkflowID:      req.WorkflowID,
		Version:         req.Version,
		TriggerSource:   req.Source,
		IdempotencyKey:  key,
		Status:          domain.ExecutionPending,
		TriggerMetadata: req.Payload,
		Created:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	if !created {
		d.metrics.add(ctx, d.metrics.duplicates, 1, attribute.String("source", string(req.Source)))
		slog.InfoContext(ctx, "Dispatch collapsed onto existing execution", "execution_id", exec.ID, "idempotency_key", key)
	}

	// Submit even for an existing execution: an earlier attempt may have created the row and
	// then failed to enqueue. The queue drops the duplicate if it did get through.
	inserted, err := d.queue.Submit(ctx, &domain.QueueTask{
		IdempotencyKey: key,
		ExecutionID:    exec.ID,
		WorkflowID:     exec.WorkflowID,
		Version:        exec.Version,
		TriggerSource:  exec.TriggerSource,
		Payload:        exec.TriggerMetadata,
		Created:        now,
	})
	if err != nil {
		d.metrics.add(ctx, d.metrics.dispatchFailures, 1, attribute.String("source", string(req.Source)))
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	if inserted {
		d.metrics.add(ctx, d.metrics.dispatched, 1, attribute.String("source", string(req.Source)))
		slog.InfoContext(ctx, "Dispatched execution", "execution_id", exec.ID, "workflow_id", exec.WorkflowID,
			"version", exec.Version, "source", exec.TriggerSource)
		if d.wakeup != nil {
			d.wakeup()
		}
	}
	return exec, nil
}
