package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
)

// VersionManager is the only write path for workflow definitions. Every save appends an
// immutable snapshot; nothing updates or deletes history.
type VersionManager struct {
	repo  VersionRepo
	clock core.Clock
}

func NewVersionManager(repo VersionRepo, clock core.Clock) *VersionManager {
	return &VersionManager{repo: repo, clock: clock}
}

// ParseDefinition validates raw into its typed form.
func ParseDefinition(raw []byte) (*domain.WorkflowDefinition, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var def domain.WorkflowDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: at least one step is required", ErrInvalidDefinition)
	}
	seen := make(map[string]struct{}, len(def.Steps))
	for i, step := range def.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return nil, fmt.Errorf("%w: step %d has no name", ErrInvalidDefinition, i)
		}
		if strings.TrimSpace(step.Action) == "" {
			return nil, fmt.Errorf("%w: step %q has no action", ErrInvalidDefinition, step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate step name %q", ErrInvalidDefinition, step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return &def, nil
}

// SaveVersion validates definition, stores it canonically as the next version and returns
// the new version number.
func (vm *VersionManager) SaveVersion(ctx context.Context, workflowID string, definition []byte) (int, error) {
	if strings.TrimSpace(workflowID) == "" {
		return 0, fmt.Errorf("%w: workflow id is required", ErrInvalidDefinition)
	}
	def, err := ParseDefinition(definition)
	if err != nil {
		return 0, err
	}
	canonical, err := json.Marshal(def)
	if err != nil {
		return 0, err
	}
	version, err := vm.repo.Append(ctx, workflowID, string(canonical), vm.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Saved workflow version", "workflow_id", workflowID, "version", version)
	return version, nil
}

// GetVersion returns the snapshot workflowID had at version.
func (vm *VersionManager) GetVersion(ctx context.Context, workflowID string, version int) (*domain.WorkflowVersion, error) {
	v, err := vm.repo.Get(ctx, workflowID, version)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, workflowID, version)
	}
	return v, err
}

// CurrentVersion returns the latest snapshot, the one new executions get pinned to.
func (vm *VersionManager) CurrentVersion(ctx context.Context, workflowID string) (*domain.WorkflowVersion, error) {
	v, err := vm.repo.Latest(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s has no versions", ErrVersionNotFound, workflowID)
	}
	return v, err
}

func (vm *VersionManager) ListVersions(ctx context.Context, workflowID string) ([]*domain.WorkflowVersion, error) {
	return vm.repo.List(ctx, workflowID)
}

// Definition decodes the snapshot stored for workflowID at version.
func (vm *VersionManager) Definition(ctx context.Context, workflowID string, version int) (*domain.WorkflowDefinition, error) {
	v, err := vm.GetVersion(ctx, workflowID, version)
	if err != nil {
		return nil, err
	}
	return ParseDefinition([]byte(v.Definition))
}
