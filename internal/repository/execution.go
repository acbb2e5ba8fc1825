package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

// ExecutionRepository persists executions and their append-only step log.
type ExecutionRepository struct {
	db *sql.DB
}

const EXECUTION_COLUMNS = ` id, workflow_id, version, trigger_source, idempotency_key, status, trigger_metadata,
		       error_detail, created, started_at, finished_at `

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func scanExecution(row interface{ Scan(...interface{}) error }) (*domain.Execution, error) {
	var e domain.Execution
	var metadata sql.NullString
	err := row.Scan(
		&e.ID,
		&e.WorkflowID,
		&e.Version,
		&e.TriggerSource,
		&e.IdempotencyKey,
		&e.Status,
		&metadata,
		&e.ErrorDetail,
		&e.Created,
		&e.StartedAt,
		&e.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata.Valid {
		e.TriggerMetadata = []byte(metadata.String)
	}
	e.Created = e.Created.UTC()
	e.StartedAt = utc(e.StartedAt)
	e.FinishedAt = utc(e.FinishedAt)
	return &e, nil
}

// CreateOrGet inserts e unless an execution with the same idempotency key exists, in which
// case the stored one is returned and created is false.
func (r *ExecutionRepository) CreateOrGet(ctx context.Context, e *domain.Execution) (stored *domain.Execution, created bool, err error) {
	var metadata interface{}
	if len(e.TriggerMetadata) > 0 {
		metadata = string(e.TriggerMetadata)
	}
	query := `INSERT INTO executions (` + EXECUTION_COLUMNS + `) VALUES (` + joinPlaceholders(1, 11) + `)`
	_, err = r.db.ExecContext(ctx, query, e.ID, e.WorkflowID, e.Version, string(e.TriggerSource), e.IdempotencyKey,
		string(e.Status), metadata, nullString(e.ErrorDetail), formatDateInDatabase(e.Created),
		formatDateInDatabaseNull(e.StartedAt), formatDateInDatabaseNull(e.FinishedAt))
	if err == nil {
		return e, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}
	existing, err := r.FindByIdempotencyKey(ctx, e.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Get loads an execution together with its step log.
func (r *ExecutionRepository) Get(ctx context.Context, id string) (*domain.Execution, error) {
	query := `SELECT ` + EXECUTION_COLUMNS + ` FROM executions WHERE id = ` + placeholder(1)
	e, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	steps, err := r.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Steps = steps
	return e, nil
}

func (r *ExecutionRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error) {
	query := `SELECT ` + EXECUTION_COLUMNS + ` FROM executions WHERE idempotency_key = ` + placeholder(1)
	e, err := scanExecution(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// UpdateStatus moves the execution from `from` to `to` with a single conditional UPDATE.
// started_at is set when entering running, finished_at and error_detail when entering a
// terminal status. It returns false when the stored status was no longer `from`.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, from, to domain.ExecutionStatus, at time.Time, errorDetail sql.NullString) (bool, error) {
	var query string
	var args []interface{}
	switch {
	case to == domain.ExecutionRunning:
		query = `UPDATE executions SET status = ` + placeholder(1) + `, started_at = ` + placeholder(2) +
			` WHERE id = ` + placeholder(3) + ` AND status = ` + placeholder(4)
		args = []interface{}{string(to), formatDateInDatabase(at), id, string(from)}
	case to.IsTerminal():
		query = `UPDATE executions SET status = ` + placeholder(1) + `, finished_at = ` + placeholder(2) +
			`, error_detail = ` + placeholder(3) + ` WHERE id = ` + placeholder(4) + ` AND status = ` + placeholder(5)
		args = []interface{}{string(to), formatDateInDatabase(at), nullString(errorDetail), id, string(from)}
	default:
		query = `UPDATE executions SET status = ` + placeholder(1) + ` WHERE id = ` + placeholder(2) + ` AND status = ` + placeholder(3)
		args = []interface{}{string(to), id, string(from)}
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

// AppendStep inserts step only while the execution is running. The status check and the
// insert share a transaction holding the execution row lock so a concurrent finish cannot
// slip in between. It returns false when the execution is not running.
func (r *ExecutionRepository) AppendStep(ctx context.Context, step *domain.ExecutionStep) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var status string
	lock := `SELECT status FROM executions WHERE id = ` + placeholder(1) + forUpdate()
	if err := tx.QueryRowContext(ctx, lock, step.ExecutionID).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	if domain.ExecutionStatus(status) != domain.ExecutionRunning {
		return false, nil
	}

	insert := `INSERT INTO execution_steps (execution_id, name, status, started_at, finished_at, error_detail) VALUES (` + joinPlaceholders(1, 6) + `)`
	id, err := insertReturningID(ctx, tx, insert, step.ExecutionID, step.Name, string(step.Status),
		formatDateInDatabase(step.StartedAt), formatDateInDatabaseNull(step.FinishedAt), nullString(step.ErrorDetail))
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	step.ID = id
	return true, nil
}

// ListSteps returns the step log of an execution in insertion order.
func (r *ExecutionRepository) ListSteps(ctx context.Context, executionID string) ([]domain.ExecutionStep, error) {
	query := `
		SELECT id, execution_id, name, status, started_at, finished_at, error_detail
		FROM execution_steps
		WHERE execution_id = ` + placeholder(1) + `
		ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []domain.ExecutionStep{}
	for rows.Next() {
		var s domain.ExecutionStep
		if err := rows.Scan(&s.ID, &s.ExecutionID, &s.Name, &s.Status, &s.StartedAt, &s.FinishedAt, &s.ErrorDetail); err != nil {
			return nil, err
		}
		s.StartedAt = s.StartedAt.UTC()
		s.FinishedAt = utc(s.FinishedAt)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ListByWorkflow returns the most recent executions of a workflow, newest first, without steps.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*domain.Execution, error) {
	query := `SELECT ` + EXECUTION_COLUMNS + ` FROM executions WHERE workflow_id = ` + placeholder(1) +
		` ORDER BY created DESC LIMIT ` + placeholder(2)
	return r.list(ctx, query, workflowID, limit)
}

// FindRunningStartedBefore returns running executions whose started_at is before cutoff.
func (r *ExecutionRepository) FindRunningStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Execution, error) {
	query := `SELECT ` + EXECUTION_COLUMNS + ` FROM executions
		WHERE status = ` + placeholder(1) + `
		  AND started_at IS NOT NULL
		  AND ` + dateCompare("started_at", "<", placeholder(2)) + `
		ORDER BY started_at ASC
		LIMIT ` + placeholder(3)
	return r.list(ctx, query, string(domain.ExecutionRunning), formatDateInDatabase(cutoff), limit)
}

func (r *ExecutionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}
