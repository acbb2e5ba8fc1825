package domain

import (
	"encoding/json"
	"time"
)

// WorkflowVersion is an immutable snapshot of a workflow definition.
type WorkflowVersion struct {
	WorkflowID string    `json:"workflowId"`
	Version    int       `json:"version"`
	Definition string    `json:"definition"`
	Created    time.Time `json:"created"`
}

// WorkflowDefinition is the typed form of a definition snapshot.
type WorkflowDefinition struct {
	Name  string           `json:"name"`
	Steps []StepDefinition `json:"steps"`
}

// StepDefinition names an action to run; Params are passed to it untouched.
type StepDefinition struct {
	Name   string          `json:"name"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}
