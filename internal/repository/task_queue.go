package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

// TaskQueueRepository is the SQL backed task queue. Submissions are keyed by idempotency key,
// leases use the same conditional UPDATE + expiry pattern as schedule claims, so a task whose
// worker died becomes leasable again once its lease runs out.
type TaskQueueRepository struct {
	db *sql.DB
}

const TASK_COLUMNS = ` id, idempotency_key, execution_id, workflow_id, version, trigger_source, payload, status,
		       attempts, lease_holder, lease_expires_at, created `

func NewTaskQueueRepository(db *sql.DB) *TaskQueueRepository {
	return &TaskQueueRepository{db: db}
}

func scanTask(row interface{ Scan(...interface{}) error }) (*domain.QueueTask, error) {
	var t domain.QueueTask
	var payload, holder sql.NullString
	var leaseExpires sql.NullTime
	err := row.Scan(&t.ID, &t.IdempotencyKey, &t.ExecutionID, &t.WorkflowID, &t.Version, &t.TriggerSource,
		&payload, &t.Status, &t.Attempts, &holder, &leaseExpires, &t.Created)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		t.Payload = []byte(payload.String)
	}
	t.LeaseHolder = holder.String
	if leaseExpires.Valid {
		t.LeaseExpiresAt = leaseExpires.Time.UTC()
	}
	t.Created = t.Created.UTC()
	return &t, nil
}

// Submit enqueues t. A task with the same idempotency key already queued (or already run)
// makes this a no-op and inserted is false.
func (r *TaskQueueRepository) Submit(ctx context.Context, t *domain.QueueTask) (inserted bool, err error) {
	var payload interface{}
	if len(t.Payload) > 0 {
		payload = string(t.Payload)
	}
	query := `INSERT INTO task_queue (idempotency_key, execution_id, workflow_id, version, trigger_source, payload, status, attempts, created)
		VALUES (` + joinPlaceholders(1, 9) + `)`
	id, err := insertReturningID(ctx, r.db, query, t.IdempotencyKey, t.ExecutionID, t.WorkflowID, t.Version,
		string(t.TriggerSource), payload, string(domain.TaskQueued), 0, formatDateInDatabase(t.Created))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	t.ID = id
	t.Status = domain.TaskQueued
	return true, nil
}

// Lease hands up to limit deliverable tasks to holder until now+ttl. A task is deliverable
// when queued, or leased with an expired lease.
func (r *TaskQueueRepository) Lease(ctx context.Context, holder string, ttl time.Duration, now time.Time, limit int) ([]*domain.QueueTask, error) {
	nowStr := formatDateInDatabase(now)
	candidates := `
		SELECT id FROM task_queue
		WHERE status = ` + placeholder(1) + `
		   OR (status = ` + placeholder(2) + ` AND ` + dateCompare("lease_expires_at", "<=", placeholder(3)) + `)
		ORDER BY id ASC
		LIMIT ` + placeholder(4)
	rows, err := r.db.QueryContext(ctx, candidates, string(domain.TaskQueued), string(domain.TaskLeased), nowStr, limit)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	claim := `
		UPDATE task_queue
		SET status = ` + placeholder(1) + `, lease_holder = ` + placeholder(2) + `, lease_expires_at = ` + placeholder(3) + `,
		    attempts = attempts + 1
		WHERE id = ` + placeholder(4) + `
		  AND (status = ` + placeholder(5) + `
		       OR (status = ` + placeholder(6) + ` AND ` + dateCompare("lease_expires_at", "<=", placeholder(7)) + `))`
	var leased []*domain.QueueTask
	for _, id := range ids {
		res, err := r.db.ExecContext(ctx, claim, string(domain.TaskLeased), holder, formatDateInDatabase(now.Add(ttl)),
			id, string(domain.TaskQueued), string(domain.TaskLeased), nowStr)
		if err != nil {
			return leased, err
		}
		ok, err := affectedOne(res)
		if err != nil {
			return leased, err
		}
		if !ok {
			// another worker won the race for this task
			continue
		}
		t, err := r.Get(ctx, id)
		if err != nil {
			return leased, err
		}
		leased = append(leased, t)
	}
	return leased, nil
}

func (r *TaskQueueRepository) Get(ctx context.Context, id int64) (*domain.QueueTask, error) {
	query := `SELECT ` + TASK_COLUMNS + ` FROM task_queue WHERE id = ` + placeholder(1)
	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// Extend pushes the lease holder has on task id out to until. ErrClaimLost means holder no
// longer holds the task.
func (r *TaskQueueRepository) Extend(ctx context.Context, id int64, holder string, until time.Time) error {
	query := `UPDATE task_queue SET lease_expires_at = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND lease_holder = ` + placeholder(3) + ` AND status = ` + placeholder(4)
	res, err := r.db.ExecContext(ctx, query, formatDateInDatabase(until), id, holder, string(domain.TaskLeased))
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

// Complete marks a leased task done. ErrClaimLost means the lease expired and another
// worker holds the task now.
func (r *TaskQueueRepository) Complete(ctx context.Context, id int64, holder string) error {
	query := `UPDATE task_queue SET status = ` + placeholder(1) + `, lease_expires_at = NULL
		WHERE id = ` + placeholder(2) + ` AND lease_holder = ` + placeholder(3) + ` AND status = ` + placeholder(4)
	res, err := r.db.ExecContext(ctx, query, string(domain.TaskDone), id, holder, string(domain.TaskLeased))
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
