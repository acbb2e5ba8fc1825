package webhook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, time.May, 4, 12, 0, 0, 0, time.UTC)

type MockTriggerRepo struct {
	mu       sync.Mutex
	triggers map[string]*domain.WebhookTrigger
}

func newMockTriggerRepo(triggers ...*domain.WebhookTrigger) *MockTriggerRepo {
	m := &MockTriggerRepo{triggers: make(map[string]*domain.WebhookTrigger)}
	for _, t := range triggers {
		m.triggers[t.ID] = t
	}
	return m
}

func (m *MockTriggerRepo) Create(ctx context.Context, t *domain.WebhookTrigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[t.ID] = t
	return nil
}
func (m *MockTriggerRepo) Get(ctx context.Context, id string) (*domain.WebhookTrigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}
func (m *MockTriggerRepo) ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.WebhookTrigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.WebhookTrigger
	for _, t := range m.triggers {
		if t.WorkflowID == workflowID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (m *MockTriggerRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.triggers[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Revoked = true
	t.Modified = at
	return nil
}

type MockVersionSource struct {
	CurrentVersionFunc func(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error)
}

func (m *MockVersionSource) CurrentVersion(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error) {
	if m.CurrentVersionFunc != nil {
		return m.CurrentVersionFunc(ctx, workflowID)
	}
	return &domain.WorkflowVersion{WorkflowID: workflowID, Version: 3}, nil
}

type MockDispatcher struct {
	mu       sync.Mutex
	requests []domain.DispatchRequest
	err      error
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, req)
	return &domain.Execution{ID: "exec-1", WorkflowID: req.WorkflowID, Version: req.Version, Status: domain.ExecutionPending}, nil
}

const testSecret = "8f14e45fceea167a5a36dedd4bea2543"

func liveTrigger(quota int, window time.Duration) *domain.WebhookTrigger {
	return &domain.WebhookTrigger{
		ID: "trg-1", WorkflowID: "wf", Secret: testSecret,
		RateLimitQuota: quota, RateLimitWindow: window,
	}
}

func sign(t *testing.T, scheme string, body []byte) string {
	t.Helper()
	sig, err := Sign(scheme, testSecret, body)
	require.NoError(t, err)
	return sig
}

func TestGateway_HandleValidRequest(t *testing.T) {
	body := []byte(`{"event":"push"}`)
	g := NewGateway(newMockTriggerRepo(liveTrigger(10, time.Minute)), &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start), Options{})

	for _, scheme := range []string{SchemeSHA256, SchemeBLAKE2b} {
		req, err := g.Handle(context.Background(), "trg-1", body, sign(t, scheme, body), "delivery-9")
		require.NoError(t, err, scheme)
		assert.Equal(t, "wf", req.WorkflowID)
		assert.Equal(t, 3, req.Version, "pinned to the current version")
		assert.Equal(t, domain.TriggerWebhook, req.Source)
		assert.Equal(t, "delivery-9", req.DeliveryID)
		assert.JSONEq(t, string(body), string(req.Payload))
		assert.True(t, req.ScheduledAt.IsZero())
	}
}

func TestGateway_UnknownTrigger(t *testing.T) {
	g := NewGateway(newMockTriggerRepo(), &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start), Options{})
	_, err := g.Handle(context.Background(), "nope", nil, "sha256=00", "")
	assert.ErrorIs(t, err, ErrTriggerNotFound)
}

func TestGateway_RevokedTriggerWithPreviouslyValidSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	repo := newMockTriggerRepo(liveTrigger(10, time.Minute))
	d := &MockDispatcher{}
	g := NewGateway(repo, &MockVersionSource{}, d, core.NewFakeClock(start), Options{})
	sig := sign(t, SchemeSHA256, body)

	_, err := g.Deliver(context.Background(), "trg-1", body, sig, "first")
	require.NoError(t, err)

	require.NoError(t, g.Revoke(context.Background(), "trg-1"))
	_, err = g.Deliver(context.Background(), "trg-1", body, sig, "second")
	assert.ErrorIs(t, err, ErrRevoked)
	assert.ErrorIs(t, err, ErrTriggerNotFound)
	assert.Len(t, d.requests, 1, "no execution after revocation")
}

func TestGateway_InvalidSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	g := NewGateway(newMockTriggerRepo(liveTrigger(10, time.Minute)), &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start), Options{})
	other, err := Sign(SchemeSHA256, "another-secret", body)
	require.NoError(t, err)

	for _, header := range []string{"", "sha256", "sha256=zz", "md5=00", other, sign(t, SchemeSHA256, []byte(`{"a":2}`))} {
		_, err := g.Handle(context.Background(), "trg-1", body, header, "")
		assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
	}
}

func TestGateway_RateLimitResetsAfterWindow(t *testing.T) {
	body := []byte(`{}`)
	clock := core.NewFakeClock(start)
	g := NewGateway(newMockTriggerRepo(liveTrigger(2, time.Minute)), &MockVersionSource{}, &MockDispatcher{}, clock, Options{})
	sig := sign(t, SchemeSHA256, body)

	_, err := g.Handle(context.Background(), "trg-1", body, sig, "")
	require.NoError(t, err)
	_, err = g.Handle(context.Background(), "trg-1", body, sig, "")
	require.NoError(t, err)
	_, err = g.Handle(context.Background(), "trg-1", body, sig, "")
	assert.ErrorIs(t, err, ErrRateLimited)

	clock.Add(time.Minute)
	for i := 0; i < 2; i++ {
		_, err = g.Handle(context.Background(), "trg-1", body, sig, "")
		assert.NoError(t, err, "quota restored after the window, call %d", i)
	}
}

func TestGateway_RateLimitRefillsContinuously(t *testing.T) {
	body := []byte(`{}`)
	clock := core.NewFakeClock(start)
	g := NewGateway(newMockTriggerRepo(liveTrigger(2, time.Minute)), &MockVersionSource{}, &MockDispatcher{}, clock, Options{})
	sig := sign(t, SchemeSHA256, body)

	for i := 0; i < 2; i++ {
		_, err := g.Handle(context.Background(), "trg-1", body, sig, "")
		require.NoError(t, err)
	}
	_, err := g.Handle(context.Background(), "trg-1", body, sig, "")
	require.ErrorIs(t, err, ErrRateLimited)

	// a little over half a window refills one token
	clock.Add(31 * time.Second)
	_, err = g.Handle(context.Background(), "trg-1", body, sig, "")
	assert.NoError(t, err)
	_, err = g.Handle(context.Background(), "trg-1", body, sig, "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGateway_FailedSignaturesDoNotSpendQuotaByDefault(t *testing.T) {
	body := []byte(`{}`)
	g := NewGateway(newMockTriggerRepo(liveTrigger(1, time.Minute)), &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start), Options{})

	for i := 0; i < 5; i++ {
		_, err := g.Handle(context.Background(), "trg-1", body, "sha256=00", "")
		require.ErrorIs(t, err, ErrInvalidSignature)
	}
	_, err := g.Handle(context.Background(), "trg-1", body, sign(t, SchemeSHA256, body), "")
	assert.NoError(t, err)
}

func TestGateway_FailedSignaturesSpendQuotaWhenConfigured(t *testing.T) {
	body := []byte(`{}`)
	g := NewGateway(newMockTriggerRepo(liveTrigger(1, time.Minute)), &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start),
		Options{CountFailedSignatures: true})

	_, err := g.Handle(context.Background(), "trg-1", body, "sha256=00", "")
	require.ErrorIs(t, err, ErrInvalidSignature)
	_, err = g.Handle(context.Background(), "trg-1", body, sign(t, SchemeSHA256, body), "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGateway_InvalidPayload(t *testing.T) {
	body := []byte(`not json`)
	g := NewGateway(newMockTriggerRepo(liveTrigger(10, time.Minute)), &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start), Options{})
	_, err := g.Handle(context.Background(), "trg-1", body, sign(t, SchemeSHA256, body), "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGateway_NoVersion(t *testing.T) {
	body := []byte(`{}`)
	versions := &MockVersionSource{CurrentVersionFunc: func(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error) {
		return nil, engine.ErrVersionNotFound
	}}
	g := NewGateway(newMockTriggerRepo(liveTrigger(10, time.Minute)), versions, &MockDispatcher{}, core.NewFakeClock(start), Options{})
	_, err := g.Handle(context.Background(), "trg-1", body, sign(t, SchemeSHA256, body), "")
	assert.ErrorIs(t, err, engine.ErrVersionNotFound)
}

func TestGateway_DeliverPropagatesQueueUnavailable(t *testing.T) {
	body := []byte(`{}`)
	d := &MockDispatcher{err: errors.Join(engine.ErrQueueUnavailable, errors.New("broker down"))}
	g := NewGateway(newMockTriggerRepo(liveTrigger(10, time.Minute)), &MockVersionSource{}, d, core.NewFakeClock(start), Options{})
	_, err := g.Deliver(context.Background(), "trg-1", body, sign(t, SchemeSHA256, body), "")
	assert.ErrorIs(t, err, engine.ErrQueueUnavailable)
}

func TestGateway_CreateAndListTriggers(t *testing.T) {
	repo := newMockTriggerRepo()
	g := NewGateway(repo, &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start), Options{})

	a, err := g.CreateTrigger(context.Background(), "wf", 0, 0)
	require.NoError(t, err)
	b, err := g.CreateTrigger(context.Background(), "wf", 5, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a.Secret, b.Secret)
	assert.Len(t, a.Secret, 64)

	list, err := g.ListTriggers(context.Background(), "wf")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = g.CreateTrigger(context.Background(), " ", 0, 0)
	assert.Error(t, err)
	assert.ErrorIs(t, g.Revoke(context.Background(), "missing"), ErrTriggerNotFound)
}

func TestGateway_DefaultLimitsApply(t *testing.T) {
	body := []byte(`{}`)
	g := NewGateway(newMockTriggerRepo(liveTrigger(0, 0)), &MockVersionSource{}, &MockDispatcher{}, core.NewFakeClock(start),
		Options{DefaultQuota: 1, DefaultWindow: time.Hour})
	sig := sign(t, SchemeSHA256, body)
	_, err := g.Handle(context.Background(), "trg-1", body, sig, "")
	require.NoError(t, err)
	_, err = g.Handle(context.Background(), "trg-1", body, sig, "")
	assert.ErrorIs(t, err, ErrRateLimited)
}
