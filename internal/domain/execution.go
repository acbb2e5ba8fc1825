package domain

import (
	"database/sql"
	"encoding/json"
	"time"
)

type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed || s == ExecutionCancelled
}

func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionSucceeded, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

type TriggerSource string

const (
	TriggerSchedule TriggerSource = "schedule"
	TriggerWebhook  TriggerSource = "webhook"
	TriggerManual   TriggerSource = "manual"
)

func (s TriggerSource) Valid() bool {
	return s == TriggerSchedule || s == TriggerWebhook || s == TriggerManual
}

// Execution is one run of a workflow pinned to a version.
type Execution struct {
	ID              string
	WorkflowID      string
	Version         int
	TriggerSource   TriggerSource
	IdempotencyKey  string
	Status          ExecutionStatus
	TriggerMetadata json.RawMessage
	ErrorDetail     sql.NullString
	Created         time.Time
	StartedAt       sql.NullTime
	FinishedAt      sql.NullTime
	Steps           []ExecutionStep
}

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

func (s StepStatus) Valid() bool {
	return s == StepSucceeded || s == StepFailed || s == StepSkipped
}

// ExecutionStep is one append-only entry of an execution's step log.
type ExecutionStep struct {
	ID          int64
	ExecutionID string
	Name        string
	Status      StepStatus
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	ErrorDetail sql.NullString
}
