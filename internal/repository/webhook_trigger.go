package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

// WebhookTriggerRepository persists webhook_triggers.
type WebhookTriggerRepository struct {
	db *sql.DB
}

const WEBHOOK_TRIGGER_COLUMNS = ` id, workflow_id, secret, rate_limit_quota, rate_limit_window_ms, revoked, created, modified `

func NewWebhookTriggerRepository(db *sql.DB) *WebhookTriggerRepository {
	return &WebhookTriggerRepository{db: db}
}

func scanWebhookTrigger(row interface{ Scan(...interface{}) error }) (*domain.WebhookTrigger, error) {
	var t domain.WebhookTrigger
	var windowMs int64
	if err := row.Scan(&t.ID, &t.WorkflowID, &t.Secret, &t.RateLimitQuota, &windowMs, &t.Revoked, &t.Created, &t.Modified); err != nil {
		return nil, err
	}
	t.RateLimitWindow = time.Duration(windowMs) * time.Millisecond
	t.Created = t.Created.UTC()
	t.Modified = t.Modified.UTC()
	return &t, nil
}

func (r *WebhookTriggerRepository) Create(ctx context.Context, t *domain.WebhookTrigger) error {
	query := `INSERT INTO webhook_triggers (` + WEBHOOK_TRIGGER_COLUMNS + `) VALUES (` + joinPlaceholders(1, 8) + `)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.WorkflowID, t.Secret, t.RateLimitQuota, t.RateLimitWindow.Milliseconds(),
		t.Revoked, formatDateInDatabase(t.Created), formatDateInDatabase(t.Modified))
	return err
}

func (r *WebhookTriggerRepository) Get(ctx context.Context, id string) (*domain.WebhookTrigger, error) {
	query := `SELECT ` + WEBHOOK_TRIGGER_COLUMNS + ` FROM webhook_triggers WHERE id = ` + placeholder(1)
	t, err := scanWebhookTrigger(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *WebhookTriggerRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*domain.WebhookTrigger, error) {
	query := `SELECT ` + WEBHOOK_TRIGGER_COLUMNS + ` FROM webhook_triggers WHERE workflow_id = ` + placeholder(1) + ` ORDER BY created ASC`
	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*domain.WebhookTrigger
	for rows.Next() {
		t, err := scanWebhookTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// Revoke flags the trigger as revoked. Revocation is permanent; there is no un-revoke.
func (r *WebhookTriggerRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE webhook_triggers SET revoked = ` + placeholder(1) + `, modified = ` + placeholder(2) + ` WHERE id = ` + placeholder(3)
	res, err := r.db.ExecContext(ctx, query, true, formatDateInDatabase(at), id)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
