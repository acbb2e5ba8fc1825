package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ActionInput is what a step's action receives.
type ActionInput struct {
	ExecutionID string
	WorkflowID  string
	Version     int
	Step        string
	Params      json.RawMessage
	// Payload is the trigger metadata of the execution, the raw webhook body for webhook runs.
	Payload json.RawMessage
}

// ActionFunc is one opaque unit of business logic. Returning an error fails the step.
type ActionFunc func(ctx context.Context, in ActionInput) error

// ActionRegistry maps action names used in workflow definitions to implementations.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]ActionFunc)}
}

// Register adds or replaces the action called name.
func (r *ActionRegistry) Register(name string, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = fn
}

func (r *ActionRegistry) Lookup(name string) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[name]
	return fn, ok
}

// RegisterBuiltinActions adds log, sleep, fail and http.
func RegisterBuiltinActions(r *ActionRegistry) {
	r.Register("http", HTTPAction(nil))
	r.Register("log", logAction)
	r.Register("sleep", sleepAction)
	r.Register("fail", failAction)
}

type messageParams struct {
	Message string `json:"message"`
}

func logAction(ctx context.Context, in ActionInput) error {
	var p messageParams
	if len(in.Params) > 0 {
		if err := json.Unmarshal(in.Params, &p); err != nil {
			return fmt.Errorf("log params: %w", err)
		}
	}
	slog.InfoContext(ctx, "Workflow log step", "execution_id", in.ExecutionID, "workflow_id", in.WorkflowID,
		"step", in.Step, "message", p.Message)
	return nil
}

func sleepAction(ctx context.Context, in ActionInput) error {
	var p struct {
		Duration string `json:"duration"`
	}
	if err := json.Unmarshal(in.Params, &p); err != nil {
		return fmt.Errorf("sleep params: %w", err)
	}
	d, err := time.ParseDuration(p.Duration)
	if err != nil {
		return fmt.Errorf("sleep duration: %w", err)
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failAction(_ context.Context, in ActionInput) error {
	p := messageParams{Message: "step failed"}
	if len(in.Params) > 0 {
		_ = json.Unmarshal(in.Params, &p)
	}
	return errors.New(p.Message)
}
