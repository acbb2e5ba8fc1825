package domain

import (
	"encoding/json"
	"time"
)

// DispatchRequest asks the dispatcher to start a run of WorkflowID at Version.
//
// For schedule triggers ScheduledAt is the occurrence being fired; webhook and manual
// triggers carry a DeliveryID instead. Either one feeds the idempotency key.
type DispatchRequest struct {
	WorkflowID  string
	Version     int
	Source      TriggerSource
	ScheduledAt time.Time
	DeliveryID  string
	Payload     json.RawMessage
}

type TaskStatus string

const (
	TaskQueued TaskStatus = "queued"
	TaskLeased TaskStatus = "leased"
	TaskDone   TaskStatus = "done"
)

// QueueTask is a submission held by the task queue backend.
type QueueTask struct {
	ID             int64
	IdempotencyKey string
	ExecutionID    string
	WorkflowID     string
	Version        int
	TriggerSource  TriggerSource
	Payload        json.RawMessage
	Status         TaskStatus
	Attempts       int
	LeaseHolder    string
	LeaseExpiresAt time.Time
	Created        time.Time
}
