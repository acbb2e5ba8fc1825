package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

// ScheduleRepository persists workflow_schedules. The claim columns are only ever changed by
// single conditional UPDATE statements.
type ScheduleRepository struct {
	db *sql.DB
}

const SCHEDULE_COLUMNS = ` workflow_id, cron_expression, timezone, enabled, next_run_at, last_run_at,
		       claim_token, claim_expires_at, created, modified `

func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func scanSchedule(row interface{ Scan(...interface{}) error }) (*domain.WorkflowSchedule, error) {
	var s domain.WorkflowSchedule
	err := row.Scan(
		&s.WorkflowID,
		&s.CronExpression,
		&s.Timezone,
		&s.Enabled,
		&s.NextRunAt,
		&s.LastRunAt,
		&s.ClaimToken,
		&s.ClaimExpiresAt,
		&s.Created,
		&s.Modified,
	)
	if err != nil {
		return nil, err
	}
	s.NextRunAt = utc(s.NextRunAt)
	s.LastRunAt = utc(s.LastRunAt)
	s.ClaimExpiresAt = utc(s.ClaimExpiresAt)
	s.Created = s.Created.UTC()
	s.Modified = s.Modified.UTC()
	return &s, nil
}

func (r *ScheduleRepository) Get(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error) {
	query := `SELECT ` + SCHEDULE_COLUMNS + ` FROM workflow_schedules WHERE workflow_id = ` + placeholder(1)
	s, err := scanSchedule(r.db.QueryRowContext(ctx, query, workflowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Upsert writes the configuration and recurrence fields of s. Claim columns are left alone so
// an in-flight tick keeps its claim.
func (r *ScheduleRepository) Upsert(ctx context.Context, s *domain.WorkflowSchedule) error {
	update := `
		UPDATE workflow_schedules
		SET cron_expression = ` + placeholder(1) + `, timezone = ` + placeholder(2) + `, enabled = ` + placeholder(3) + `,
		    next_run_at = ` + placeholder(4) + `, modified = ` + placeholder(5) + `
		WHERE workflow_id = ` + placeholder(6)
	updateArgs := []interface{}{s.CronExpression, s.Timezone, s.Enabled, formatDateInDatabaseNull(s.NextRunAt),
		formatDateInDatabase(s.Modified), s.WorkflowID}

	res, err := r.db.ExecContext(ctx, update, updateArgs...)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil || ok {
		return err
	}

	insert := `INSERT INTO workflow_schedules (` + SCHEDULE_COLUMNS + `) VALUES (` + joinPlaceholders(1, 10) + `)`
	_, err = r.db.ExecContext(ctx, insert, s.WorkflowID, s.CronExpression, s.Timezone, s.Enabled,
		formatDateInDatabaseNull(s.NextRunAt), formatDateInDatabaseNull(s.LastRunAt), nil, nil,
		formatDateInDatabase(s.Created), formatDateInDatabase(s.Modified))
	if isUniqueViolation(err) {
		// lost an insert race with another writer, the row exists now
		_, err = r.db.ExecContext(ctx, update, updateArgs...)
	}
	return err
}

// ListDue returns enabled schedules whose next_run_at is at or before now, oldest first.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.WorkflowSchedule, error) {
	query := `
		SELECT ` + SCHEDULE_COLUMNS + `
		FROM workflow_schedules
		WHERE enabled = ` + placeholder(1) + `
		  AND next_run_at IS NOT NULL
		  AND ` + dateCompare("next_run_at", "<=", placeholder(2)) + `
		ORDER BY next_run_at ASC
		LIMIT ` + placeholder(3)
	rows, err := r.db.QueryContext(ctx, query, true, formatDateInDatabase(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*domain.WorkflowSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, s)
	}
	return due, rows.Err()
}

// TryClaim takes the claim for holder until now+ttl. It succeeds only when the schedule is
// still enabled and due, and nobody else holds an unexpired claim.
func (r *ScheduleRepository) TryClaim(ctx context.Context, workflowID, holder string, ttl time.Duration, now time.Time) (bool, error) {
	query := `
		UPDATE workflow_schedules
		SET claim_token = ` + placeholder(1) + `, claim_expires_at = ` + placeholder(2) + `
		WHERE workflow_id = ` + placeholder(3) + `
		  AND enabled = ` + placeholder(4) + `
		  AND next_run_at IS NOT NULL
		  AND ` + dateCompare("next_run_at", "<=", placeholder(5)) + `
		  AND (claim_token IS NULL
		       OR claim_expires_at IS NULL
		       OR ` + dateCompare("claim_expires_at", "<=", placeholder(6)) + `
		       OR claim_token = ` + placeholder(7) + `)
	`
	nowStr := formatDateInDatabase(now)
	res, err := r.db.ExecContext(ctx, query, holder, formatDateInDatabase(now.Add(ttl)), workflowID, true, nowStr, nowStr, holder)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// CommitRun stores the recomputed occurrence and drops the claim. configuredAt is the
// modified value the tick read: if the schedule was reconfigured since, its new next_run_at
// is kept and only last_run_at is recorded. ErrClaimLost means the claim expired and was
// taken over before the commit.
func (r *ScheduleRepository) CommitRun(ctx context.Context, workflowID, holder string, configuredAt, nextRunAt, lastRunAt time.Time) error {
	query := `
		UPDATE workflow_schedules
		SET next_run_at = ` + placeholder(1) + `, last_run_at = ` + placeholder(2) + `,
		    claim_token = NULL, claim_expires_at = NULL, modified = ` + placeholder(3) + `
		WHERE workflow_id = ` + placeholder(4) + ` AND claim_token = ` + placeholder(5) + `
		  AND ` + dateCompare("modified", "=", placeholder(6))
	res, err := r.db.ExecContext(ctx, query, formatDateInDatabase(nextRunAt), formatDateInDatabase(lastRunAt),
		formatDateInDatabase(lastRunAt), workflowID, holder, formatDateInDatabase(configuredAt))
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil || ok {
		return err
	}

	reconfigured := `
		UPDATE workflow_schedules
		SET last_run_at = ` + placeholder(1) + `, claim_token = NULL, claim_expires_at = NULL
		WHERE workflow_id = ` + placeholder(2) + ` AND claim_token = ` + placeholder(3)
	res, err = r.db.ExecContext(ctx, reconfigured, formatDateInDatabase(lastRunAt), workflowID, holder)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrClaimLost
	}
	return nil
}

// ReleaseClaim drops holder's claim without touching the recurrence fields.
func (r *ScheduleRepository) ReleaseClaim(ctx context.Context, workflowID, holder string) error {
	query := `
		UPDATE workflow_schedules
		SET claim_token = NULL, claim_expires_at = NULL
		WHERE workflow_id = ` + placeholder(1) + ` AND claim_token = ` + placeholder(2)
	_, err := r.db.ExecContext(ctx, query, workflowID, holder)
	return err
}
