package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
)

type MockScheduleRepo struct {
	GetFunc          func(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error)
	UpsertFunc       func(ctx context.Context, s *domain.WorkflowSchedule) error
	ListDueFunc      func(ctx context.Context, now time.Time, limit int) ([]*domain.WorkflowSchedule, error)
	TryClaimFunc     func(ctx context.Context, workflowID, holder string, ttl time.Duration, now time.Time) (bool, error)
	CommitRunFunc    func(ctx context.Context, workflowID, holder string, configuredAt, nextRunAt, lastRunAt time.Time) error
	ReleaseClaimFunc func(ctx context.Context, workflowID, holder string) error
}

func (m *MockScheduleRepo) Get(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, workflowID)
	}
	return nil, repository.ErrNotFound
}
func (m *MockScheduleRepo) Upsert(ctx context.Context, s *domain.WorkflowSchedule) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, s)
	}
	return nil
}
func (m *MockScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.WorkflowSchedule, error) {
	if m.ListDueFunc != nil {
		return m.ListDueFunc(ctx, now, limit)
	}
	return nil, nil
}
func (m *MockScheduleRepo) TryClaim(ctx context.Context, workflowID, holder string, ttl time.Duration, now time.Time) (bool, error) {
	if m.TryClaimFunc != nil {
		return m.TryClaimFunc(ctx, workflowID, holder, ttl, now)
	}
	return true, nil
}
func (m *MockScheduleRepo) CommitRun(ctx context.Context, workflowID, holder string, configuredAt, nextRunAt, lastRunAt time.Time) error {
	if m.CommitRunFunc != nil {
		return m.CommitRunFunc(ctx, workflowID, holder, configuredAt, nextRunAt, lastRunAt)
	}
	return nil
}
func (m *MockScheduleRepo) ReleaseClaim(ctx context.Context, workflowID, holder string) error {
	if m.ReleaseClaimFunc != nil {
		return m.ReleaseClaimFunc(ctx, workflowID, holder)
	}
	return nil
}

type MockTaskQueue struct {
	SubmitFunc   func(ctx context.Context, t *domain.QueueTask) (bool, error)
	LeaseFunc    func(ctx context.Context, holder string, ttl time.Duration, now time.Time, limit int) ([]*domain.QueueTask, error)
	ExtendFunc   func(ctx context.Context, id int64, holder string, until time.Time) error
	CompleteFunc func(ctx context.Context, id int64, holder string) error
}

func (m *MockTaskQueue) Submit(ctx context.Context, t *domain.QueueTask) (bool, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, t)
	}
	return true, nil
}
func (m *MockTaskQueue) Lease(ctx context.Context, holder string, ttl time.Duration, now time.Time, limit int) ([]*domain.QueueTask, error) {
	if m.LeaseFunc != nil {
		return m.LeaseFunc(ctx, holder, ttl, now, limit)
	}
	return nil, nil
}
func (m *MockTaskQueue) Extend(ctx context.Context, id int64, holder string, until time.Time) error {
	if m.ExtendFunc != nil {
		return m.ExtendFunc(ctx, id, holder, until)
	}
	return nil
}
func (m *MockTaskQueue) Complete(ctx context.Context, id int64, holder string) error {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, id, holder)
	}
	return nil
}

type MockExecutorRepo struct {
	SaveFunc                     func(ctx context.Context, e *domain.Executor) (int64, error)
	UpdateLastActiveFunc         func(ctx context.Context, id int64, ts time.Time) error
	GetExecutorsByLastActiveFunc func(ctx context.Context, limit int) ([]*domain.Executor, error)
}

func (m *MockExecutorRepo) Save(ctx context.Context, e *domain.Executor) (int64, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, e)
	}
	return 1, nil
}
func (m *MockExecutorRepo) UpdateLastActive(ctx context.Context, id int64, ts time.Time) error {
	if m.UpdateLastActiveFunc != nil {
		return m.UpdateLastActiveFunc(ctx, id, ts)
	}
	return nil
}
func (m *MockExecutorRepo) GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error) {
	if m.GetExecutorsByLastActiveFunc != nil {
		return m.GetExecutorsByLastActiveFunc(ctx, limit)
	}
	return nil, nil
}

// memVersions is an in-memory VersionRepo.
type memVersions struct {
	mu       sync.Mutex
	versions map[string][]*domain.WorkflowVersion
}

func newMemVersions() *memVersions {
	return &memVersions{versions: make(map[string][]*domain.WorkflowVersion)}
}

func (m *memVersions) Append(_ context.Context, workflowID, definition string, created time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.versions[workflowID]) + 1
	m.versions[workflowID] = append(m.versions[workflowID], &domain.WorkflowVersion{
		WorkflowID: workflowID, Version: n, Definition: definition, Created: created,
	})
	return n, nil
}
func (m *memVersions) Get(_ context.Context, workflowID string, version int) (*domain.WorkflowVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.versions[workflowID]
	if version < 1 || version > len(list) {
		return nil, repository.ErrNotFound
	}
	v := *list[version-1]
	return &v, nil
}
func (m *memVersions) Latest(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error) {
	m.mu.Lock()
	n := len(m.versions[workflowID])
	m.mu.Unlock()
	return m.Get(ctx, workflowID, n)
}
func (m *memVersions) List(_ context.Context, workflowID string) ([]*domain.WorkflowVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.WorkflowVersion(nil), m.versions[workflowID]...), nil
}

// memExecutions is an in-memory ExecutionRepo with the same CAS semantics as the SQL one.
type memExecutions struct {
	mu         sync.Mutex
	executions map[string]*domain.Execution
	byKey      map[string]string
	// UpdateStatusFunc, when set, runs before the CAS; used to inject races.
	UpdateStatusFunc func(id string, from, to domain.ExecutionStatus)
}

func newMemExecutions() *memExecutions {
	return &memExecutions{executions: make(map[string]*domain.Execution), byKey: make(map[string]string)}
}

func (m *memExecutions) CreateOrGet(_ context.Context, e *domain.Execution) (*domain.Execution, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[e.IdempotencyKey]; ok {
		cp := *m.executions[id]
		return &cp, false, nil
	}
	cp := *e
	m.executions[e.ID] = &cp
	m.byKey[e.IdempotencyKey] = e.ID
	return e, true, nil
}
func (m *memExecutions) Get(_ context.Context, id string) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	cp.Steps = append([]domain.ExecutionStep(nil), e.Steps...)
	return &cp, nil
}
func (m *memExecutions) UpdateStatus(_ context.Context, id string, from, to domain.ExecutionStatus, at time.Time, errorDetail sql.NullString) (bool, error) {
	if m.UpdateStatusFunc != nil {
		m.UpdateStatusFunc(id, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	if to == domain.ExecutionRunning {
		e.StartedAt = sql.NullTime{Time: at, Valid: true}
	}
	if to.IsTerminal() {
		e.FinishedAt = sql.NullTime{Time: at, Valid: true}
		e.ErrorDetail = errorDetail
	}
	return true, nil
}
func (m *memExecutions) AppendStep(_ context.Context, step *domain.ExecutionStep) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[step.ExecutionID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if e.Status != domain.ExecutionRunning {
		return false, nil
	}
	step.ID = int64(len(e.Steps) + 1)
	e.Steps = append(e.Steps, *step)
	return true, nil
}
func (m *memExecutions) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Execution
	for _, e := range m.executions {
		if e.WorkflowID == workflowID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (m *memExecutions) FindRunningStartedBefore(_ context.Context, cutoff time.Time, limit int) ([]*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Execution
	for _, e := range m.executions {
		if e.Status == domain.ExecutionRunning && e.StartedAt.Valid && e.StartedAt.Time.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memExecutions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executions)
}

// memQueue is an in-memory TaskQueue keyed by idempotency key.
type memQueue struct {
	mu        sync.Mutex
	tasks     []*domain.QueueTask
	keys      map[string]bool
	completed []int64
	fail      error
}

func newMemQueue() *memQueue {
	return &memQueue{keys: make(map[string]bool)}
}

func (q *memQueue) Submit(_ context.Context, t *domain.QueueTask) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return false, q.fail
	}
	if q.keys[t.IdempotencyKey] {
		return false, nil
	}
	q.keys[t.IdempotencyKey] = true
	t.ID = int64(len(q.tasks) + 1)
	t.Status = domain.TaskQueued
	q.tasks = append(q.tasks, t)
	return true, nil
}
func (q *memQueue) Lease(_ context.Context, holder string, ttl time.Duration, now time.Time, limit int) ([]*domain.QueueTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*domain.QueueTask
	for _, t := range q.tasks {
		if len(out) >= limit {
			break
		}
		if t.Status == domain.TaskQueued || (t.Status == domain.TaskLeased && !t.LeaseExpiresAt.After(now)) {
			t.Status = domain.TaskLeased
			t.LeaseHolder = holder
			t.LeaseExpiresAt = now.Add(ttl)
			t.Attempts++
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (q *memQueue) Extend(_ context.Context, id int64, holder string, until time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.ID == id {
			if t.LeaseHolder != holder || t.Status != domain.TaskLeased {
				return repository.ErrClaimLost
			}
			t.LeaseExpiresAt = until
			return nil
		}
	}
	return fmt.Errorf("task %d not found", id)
}
func (q *memQueue) Complete(_ context.Context, id int64, holder string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.ID == id {
			if t.LeaseHolder != holder {
				return repository.ErrClaimLost
			}
			t.Status = domain.TaskDone
			q.completed = append(q.completed, id)
			return nil
		}
	}
	return fmt.Errorf("task %d not found", id)
}

func (q *memQueue) submitted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
