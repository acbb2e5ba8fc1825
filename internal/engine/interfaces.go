package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

// ScheduleRepo defines the trigger store operations the scheduler needs, matching repository.ScheduleRepository.
type ScheduleRepo interface {
	Get(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error)
	Upsert(ctx context.Context, s *domain.WorkflowSchedule) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.WorkflowSchedule, error)
	TryClaim(ctx context.Context, workflowID, holder string, ttl time.Duration, now time.Time) (bool, error)
	CommitRun(ctx context.Context, workflowID, holder string, configuredAt, nextRunAt, lastRunAt time.Time) error
	ReleaseClaim(ctx context.Context, workflowID, holder string) error
}

// ExecutionRepo defines the interface for execution persistence.
type ExecutionRepo interface {
	CreateOrGet(ctx context.Context, e *domain.Execution) (*domain.Execution, bool, error)
	Get(ctx context.Context, id string) (*domain.Execution, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.ExecutionStatus, at time.Time, errorDetail sql.NullString) (bool, error)
	AppendStep(ctx context.Context, step *domain.ExecutionStep) (bool, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*domain.Execution, error)
	FindRunningStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Execution, error)
}

// VersionRepo defines the interface for the append-only version history.
type VersionRepo interface {
	Append(ctx context.Context, workflowID, definition string, created time.Time) (int, error)
	Get(ctx context.Context, workflowID string, version int) (*domain.WorkflowVersion, error)
	Latest(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error)
	List(ctx context.Context, workflowID string) ([]*domain.WorkflowVersion, error)
}

// TaskQueue is the distributed task queue backend, matching repository.TaskQueueRepository.
type TaskQueue interface {
	Submit(ctx context.Context, t *domain.QueueTask) (bool, error)
	Lease(ctx context.Context, holder string, ttl time.Duration, now time.Time, limit int) ([]*domain.QueueTask, error)
	Extend(ctx context.Context, id int64, holder string, until time.Time) error
	Complete(ctx context.Context, id int64, holder string) error
}

// ExecutorRepo defines the interface for executor persistence.
type ExecutorRepo interface {
	Save(ctx context.Context, e *domain.Executor) (int64, error)
	UpdateLastActive(ctx context.Context, id int64, ts time.Time) error
	GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error)
}
