package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

// appendAttempts bounds retries when concurrent writers race for the same version number.
const appendAttempts = 5

// VersionRepository persists workflow_versions. Rows are only ever inserted.
type VersionRepository struct {
	db *sql.DB
}

func NewVersionRepository(db *sql.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Append stores definition as the next version of workflowID and returns its number.
// Numbers are max+1 guarded by the (workflow_id, version) primary key, so a lost race
// retries with the fresh maximum instead of leaving a gap.
func (r *VersionRepository) Append(ctx context.Context, workflowID, definition string, created time.Time) (int, error) {
	for attempt := 0; attempt < appendAttempts; attempt++ {
		version, err := r.appendOnce(ctx, workflowID, definition, created)
		if err == nil {
			return version, nil
		}
		if !isUniqueViolation(err) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("append version for workflow %s: too much contention", workflowID)
}

func (r *VersionRepository) appendOnce(ctx context.Context, workflowID, definition string, created time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var current int
	query := `SELECT COALESCE(MAX(version), 0) FROM workflow_versions WHERE workflow_id = ` + placeholder(1)
	if err := tx.QueryRowContext(ctx, query, workflowID).Scan(&current); err != nil {
		return 0, err
	}
	next := current + 1
	insert := `INSERT INTO workflow_versions (workflow_id, version, definition, created) VALUES (` + joinPlaceholders(1, 4) + `)`
	if _, err := tx.ExecContext(ctx, insert, workflowID, next, definition, formatDateInDatabase(created)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func scanVersion(row interface{ Scan(...interface{}) error }) (*domain.WorkflowVersion, error) {
	var v domain.WorkflowVersion
	if err := row.Scan(&v.WorkflowID, &v.Version, &v.Definition, &v.Created); err != nil {
		return nil, err
	}
	v.Created = v.Created.UTC()
	return &v, nil
}

func (r *VersionRepository) Get(ctx context.Context, workflowID string, version int) (*domain.WorkflowVersion, error) {
	query := `SELECT workflow_id, version, definition, created FROM workflow_versions
		WHERE workflow_id = ` + placeholder(1) + ` AND version = ` + placeholder(2)
	v, err := scanVersion(r.db.QueryRowContext(ctx, query, workflowID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// Latest returns the highest version of workflowID.
func (r *VersionRepository) Latest(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error) {
	query := `SELECT workflow_id, version, definition, created FROM workflow_versions
		WHERE workflow_id = ` + placeholder(1) + ` ORDER BY version DESC LIMIT 1`
	v, err := scanVersion(r.db.QueryRowContext(ctx, query, workflowID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// List returns every version of workflowID in ascending order.
func (r *VersionRepository) List(ctx context.Context, workflowID string) ([]*domain.WorkflowVersion, error) {
	query := `SELECT workflow_id, version, definition, created FROM workflow_versions
		WHERE workflow_id = ` + placeholder(1) + ` ORDER BY version ASC`
	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.WorkflowVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
