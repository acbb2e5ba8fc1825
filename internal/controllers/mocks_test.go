package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
)

type MockScheduleService struct {
	ConfigureFunc func(ctx context.Context, workflowID string, cfg engine.ScheduleConfig) (*domain.WorkflowSchedule, error)
	GetFunc       func(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error)
}

func (m *MockScheduleService) Configure(ctx context.Context, workflowID string, cfg engine.ScheduleConfig) (*domain.WorkflowSchedule, error) {
	return m.ConfigureFunc(ctx, workflowID, cfg)
}
func (m *MockScheduleService) Get(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error) {
	return m.GetFunc(ctx, workflowID)
}

type MockTriggerService struct {
	DeliverFunc       func(ctx context.Context, triggerID string, payload []byte, signatureHeader, deliveryID string) (*domain.Execution, error)
	CreateTriggerFunc func(ctx context.Context, workflowID string, quota int, window time.Duration) (*domain.WebhookTrigger, error)
	RevokeFunc        func(ctx context.Context, triggerID string) error
	ListTriggersFunc  func(ctx context.Context, workflowID string) ([]*domain.WebhookTrigger, error)
}

func (m *MockTriggerService) Deliver(ctx context.Context, triggerID string, payload []byte, signatureHeader, deliveryID string) (*domain.Execution, error) {
	return m.DeliverFunc(ctx, triggerID, payload, signatureHeader, deliveryID)
}
func (m *MockTriggerService) CreateTrigger(ctx context.Context, workflowID string, quota int, window time.Duration) (*domain.WebhookTrigger, error) {
	return m.CreateTriggerFunc(ctx, workflowID, quota, window)
}
func (m *MockTriggerService) Revoke(ctx context.Context, triggerID string) error {
	return m.RevokeFunc(ctx, triggerID)
}
func (m *MockTriggerService) ListTriggers(ctx context.Context, workflowID string) ([]*domain.WebhookTrigger, error) {
	return m.ListTriggersFunc(ctx, workflowID)
}

type MockVersionService struct {
	SaveVersionFunc  func(ctx context.Context, workflowID string, definition []byte) (int, error)
	GetVersionFunc   func(ctx context.Context, workflowID string, version int) (*domain.WorkflowVersion, error)
	ListVersionsFunc func(ctx context.Context, workflowID string) ([]*domain.WorkflowVersion, error)
}

func (m *MockVersionService) SaveVersion(ctx context.Context, workflowID string, definition []byte) (int, error) {
	return m.SaveVersionFunc(ctx, workflowID, definition)
}
func (m *MockVersionService) GetVersion(ctx context.Context, workflowID string, version int) (*domain.WorkflowVersion, error) {
	return m.GetVersionFunc(ctx, workflowID, version)
}
func (m *MockVersionService) ListVersions(ctx context.Context, workflowID string) ([]*domain.WorkflowVersion, error) {
	return m.ListVersionsFunc(ctx, workflowID)
}

type MockExecutionTracker struct {
	GetFunc            func(ctx context.Context, id string) (*domain.Execution, error)
	ListByWorkflowFunc func(ctx context.Context, workflowID string, limit int) ([]*domain.Execution, error)
	StartFunc          func(ctx context.Context, id string) error
	RecordStepFunc     func(ctx context.Context, id string, step domain.ExecutionStep) error
	FinishFunc         func(ctx context.Context, id string, status domain.ExecutionStatus, errorDetail string) error
}

func (m *MockExecutionTracker) Get(ctx context.Context, id string) (*domain.Execution, error) {
	return m.GetFunc(ctx, id)
}
func (m *MockExecutionTracker) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*domain.Execution, error) {
	return m.ListByWorkflowFunc(ctx, workflowID, limit)
}
func (m *MockExecutionTracker) Start(ctx context.Context, id string) error {
	return m.StartFunc(ctx, id)
}
func (m *MockExecutionTracker) RecordStep(ctx context.Context, id string, step domain.ExecutionStep) error {
	return m.RecordStepFunc(ctx, id, step)
}
func (m *MockExecutionTracker) Finish(ctx context.Context, id string, status domain.ExecutionStatus, errorDetail string) error {
	return m.FinishFunc(ctx, id, status, errorDetail)
}

type MockDispatcher struct {
	DispatchFunc func(ctx context.Context, req domain.DispatchRequest) (*domain.Execution, error)
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.Execution, error) {
	return m.DispatchFunc(ctx, req)
}

type MockExecutorRepo struct {
	GetExecutorsByLastActiveFunc func(ctx context.Context, limit int) ([]*domain.Executor, error)
}

func (m *MockExecutorRepo) Save(ctx context.Context, e *domain.Executor) (int64, error) {
	return 1, nil
}
func (m *MockExecutorRepo) UpdateLastActive(ctx context.Context, id int64, ts time.Time) error {
	return nil
}
func (m *MockExecutorRepo) GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error) {
	if m.GetExecutorsByLastActiveFunc != nil {
		return m.GetExecutorsByLastActiveFunc(ctx, limit)
	}
	return nil, nil
}

type routable interface {
	RegisterRoutes(mux *http.ServeMux)
}

func newMux(controllers ...routable) *http.ServeMux {
	mux := http.NewServeMux()
	for _, c := range controllers {
		c.RegisterRoutes(mux)
	}
	return mux
}
