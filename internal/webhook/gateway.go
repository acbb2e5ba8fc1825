package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrTriggerNotFound  = errors.New("webhook trigger not found")
	ErrRevoked          = fmt.Errorf("%w: revoked", ErrTriggerNotFound)
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrRateLimited      = errors.New("webhook rate limit exceeded")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

type TriggerRepo interface {
	Create(ctx context.Context, t *domain.WebhookTrigger) error
	Get(ctx context.Context, id string) (*domain.WebhookTrigger, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.WebhookTrigger, error)
	Revoke(ctx context.Context, id string, at time.Time) error
}

// VersionSource resolves the version a webhook run is pinned to.
type VersionSource interface {
	CurrentVersion(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error)
}

type Options struct {
	// CountFailedSignatures makes every request with a bad signature spend one unit of the
	// trigger's quota.
	CountFailedSignatures bool
	DefaultQuota          int
	DefaultWindow         time.Duration
	// MeterProvider receives the rejection counter; nil means the global provider.
	MeterProvider metric.MeterProvider
}

// Gateway verifies inbound webhook requests and turns valid ones into dispatch requests.
type Gateway struct {
	triggers   TriggerRepo
	versions   VersionSource
	dispatcher engine.RunDispatcher
	clock      core.Clock
	opts       Options
	limits     *limiters
	rejected   metric.Int64Counter
}

func NewGateway(triggers TriggerRepo, versions VersionSource, dispatcher engine.RunDispatcher, clock core.Clock, opts Options) *Gateway {
	if opts.DefaultQuota <= 0 {
		opts.DefaultQuota = 60
	}
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = time.Minute
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	rejected, err := mp.Meter("github.com/RealZimboGuy/flowtrigger/internal/webhook").Int64Counter(
		"flowtrigger.webhook.rejected", metric.WithDescription("Webhook requests rejected by the gateway"))
	if err != nil {
		slog.Warn("Unable to register webhook metrics", "error", err)
	}
	return &Gateway{
		triggers:   triggers,
		versions:   versions,
		dispatcher: dispatcher,
		clock:      clock,
		opts:       opts,
		limits:     newLimiters(),
		rejected:   rejected,
	}
}

// Handle validates one request for triggerID and returns the dispatch request it maps to,
// pinned to the workflow's current version. Checks run in order: trigger exists and is
// live, signature, rate limit, payload.
func (g *Gateway) Handle(ctx context.Context, triggerID string, payload []byte, signatureHeader, deliveryID string) (*domain.DispatchRequest, error) {
	trigger, err := g.triggers.Get(ctx, triggerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, g.reject(ctx, triggerID, "not_found", fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID))
	}
	if err != nil {
		return nil, err
	}
	if trigger.Revoked {
		return nil, g.reject(ctx, triggerID, "revoked", fmt.Errorf("%w: %s", ErrRevoked, triggerID))
	}

	quota, window := g.limitsFor(trigger)
	now := g.clock.Now()
	if !Verify(trigger.Secret, payload, signatureHeader) {
		if g.opts.CountFailedSignatures {
			g.limits.allow(trigger.ID, quota, window, now)
		}
		return nil, g.reject(ctx, triggerID, "signature", fmt.Errorf("%w: %s", ErrInvalidSignature, triggerID))
	}
	if !g.limits.allow(trigger.ID, quota, window, now) {
		return nil, g.reject(ctx, triggerID, "rate_limited", fmt.Errorf("%w: %s allows %d per %s", ErrRateLimited, triggerID, quota, window))
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, g.reject(ctx, triggerID, "payload", fmt.Errorf("%w: body is not JSON", ErrInvalidPayload))
	}

	version, err := g.versions.CurrentVersion(ctx, trigger.WorkflowID)
	if err != nil {
		return nil, err
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	req := &domain.DispatchRequest{
		WorkflowID: trigger.WorkflowID,
		Version:    version.Version,
		Source:     domain.TriggerWebhook,
		DeliveryID: deliveryID,
	}
	if len(payload) > 0 {
		req.Payload = json.RawMessage(payload)
	}
	return req, nil
}

// Deliver handles the request and dispatches it.
func (g *Gateway) Deliver(ctx context.Context, triggerID string, payload []byte, signatureHeader, deliveryID string) (*domain.Execution, error) {
	req, err := g.Handle(ctx, triggerID, payload, signatureHeader, deliveryID)
	if err != nil {
		return nil, err
	}
	exec, err := g.dispatcher.Dispatch(ctx, *req)
	if err != nil {
		slog.ErrorContext(ctx, "Webhook dispatch failed", "trigger_id", triggerID, "workflow_id", req.WorkflowID, "error", err)
		return nil, err
	}
	slog.InfoContext(ctx, "Webhook accepted", "trigger_id", triggerID, "workflow_id", req.WorkflowID,
		"execution_id", exec.ID, "delivery_id", req.DeliveryID)
	return exec, nil
}

// CreateTrigger registers a new webhook trigger for workflowID with a fresh random secret.
// Zero quota or window fall back to the gateway defaults.
func (g *Gateway) CreateTrigger(ctx context.Context, workflowID string, quota int, window time.Duration) (*domain.WebhookTrigger, error) {
	if strings.TrimSpace(workflowID) == "" {
		return nil, errors.New("workflow id is required")
	}
	if quota < 0 || window < 0 {
		return nil, fmt.Errorf("rate limit must not be negative")
	}
	secret, err := NewSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	now := g.clock.Now().UTC()
	t := &domain.WebhookTrigger{
		ID:              uuid.NewString(),
		WorkflowID:      workflowID,
		Secret:          secret,
		RateLimitQuota:  quota,
		RateLimitWindow: window,
		Created:         now,
		Modified:        now,
	}
	if err := g.triggers.Create(ctx, t); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Created webhook trigger", "trigger_id", t.ID, "workflow_id", workflowID)
	return t, nil
}

// Revoke permanently disables the trigger.
func (g *Gateway) Revoke(ctx context.Context, triggerID string) error {
	err := g.triggers.Revoke(ctx, triggerID, g.clock.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, triggerID)
	}
	if err != nil {
		return err
	}
	g.limits.forget(triggerID)
	slog.InfoContext(ctx, "Revoked webhook trigger", "trigger_id", triggerID)
	return nil
}

func (g *Gateway) ListTriggers(ctx context.Context, workflowID string) ([]*domain.WebhookTrigger, error) {
	return g.triggers.ListByWorkflow(ctx, workflowID)
}

func (g *Gateway) limitsFor(t *domain.WebhookTrigger) (int, time.Duration) {
	quota, window := t.RateLimitQuota, t.RateLimitWindow
	if quota <= 0 {
		quota = g.opts.DefaultQuota
	}
	if window <= 0 {
		window = g.opts.DefaultWindow
	}
	return quota, window
}

func (g *Gateway) reject(ctx context.Context, triggerID, reason string, err error) error {
	if g.rejected != nil {
		g.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
	slog.InfoContext(ctx, "Rejected webhook request", "trigger_id", triggerID, "reason", reason)
	return err
}
