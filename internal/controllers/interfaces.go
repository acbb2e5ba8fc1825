package controllers

import (
	"context"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
)

type ScheduleService interface {
	Configure(ctx context.Context, workflowID string, cfg engine.ScheduleConfig) (*domain.WorkflowSchedule, error)
	Get(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error)
}

type TriggerService interface {
	Deliver(ctx context.Context, triggerID string, payload []byte, signatureHeader, deliveryID string) (*domain.Execution, error)
	CreateTrigger(ctx context.Context, workflowID string, quota int, window time.Duration) (*domain.WebhookTrigger, error)
	Revoke(ctx context.Context, triggerID string) error
	ListTriggers(ctx context.Context, workflowID string) ([]*domain.WebhookTrigger, error)
}

type VersionService interface {
	SaveVersion(ctx context.Context, workflowID string, definition []byte) (int, error)
	GetVersion(ctx context.Context, workflowID string, version int) (*domain.WorkflowVersion, error)
	ListVersions(ctx context.Context, workflowID string) ([]*domain.WorkflowVersion, error)
}

type ExecutionTracker interface {
	Get(ctx context.Context, id string) (*domain.Execution, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*domain.Execution, error)
	Start(ctx context.Context, id string) error
	RecordStep(ctx context.Context, id string, step domain.ExecutionStep) error
	Finish(ctx context.Context, id string, status domain.ExecutionStatus, errorDetail string) error
}
