package models

import (
	"encoding/json"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/domain"
)

type ScheduleRequest struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone"`
	Enabled  bool   `json:"enabled"`
}

type ScheduleResponse struct {
	WorkflowID string     `json:"workflowId"`
	Cron       string     `json:"cron"`
	Timezone   string     `json:"timezone"`
	Enabled    bool       `json:"enabled"`
	NextRunAt  *time.Time `json:"nextRunAt,omitempty"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	Modified   time.Time  `json:"modified"`
}

func NewScheduleResponse(s *domain.WorkflowSchedule) ScheduleResponse {
	resp := ScheduleResponse{
		WorkflowID: s.WorkflowID,
		Cron:       s.CronExpression,
		Timezone:   s.Timezone,
		Enabled:    s.Enabled,
		Modified:   s.Modified,
	}
	if s.NextRunAt.Valid {
		resp.NextRunAt = &s.NextRunAt.Time
	}
	if s.LastRunAt.Valid {
		resp.LastRunAt = &s.LastRunAt.Time
	}
	return resp
}

type CreateTriggerRequest struct {
	RateLimitQuota int `json:"rateLimitQuota"`
	// RateLimitWindow is a Go duration string such as "1m".
	RateLimitWindow string `json:"rateLimitWindow"`
}

// TriggerResponse carries the secret only when the trigger is created.
type TriggerResponse struct {
	ID              string    `json:"id"`
	WorkflowID      string    `json:"workflowId"`
	Secret          string    `json:"secret,omitempty"`
	RateLimitQuota  int       `json:"rateLimitQuota"`
	RateLimitWindow string    `json:"rateLimitWindow"`
	Revoked         bool      `json:"revoked"`
	Created         time.Time `json:"created"`
}

func NewTriggerResponse(t *domain.WebhookTrigger, withSecret bool) TriggerResponse {
	resp := TriggerResponse{
		ID:              t.ID,
		WorkflowID:      t.WorkflowID,
		RateLimitQuota:  t.RateLimitQuota,
		RateLimitWindow: t.RateLimitWindow.String(),
		Revoked:         t.Revoked,
		Created:         t.Created,
	}
	if withSecret {
		resp.Secret = t.Secret
	}
	return resp
}

type VersionResponse struct {
	WorkflowID string          `json:"workflowId"`
	Version    int             `json:"version"`
	Definition json.RawMessage `json:"definition"`
	Created    time.Time       `json:"created"`
}

func NewVersionResponse(v *domain.WorkflowVersion) VersionResponse {
	return VersionResponse{
		WorkflowID: v.WorkflowID,
		Version:    v.Version,
		Definition: json.RawMessage(v.Definition),
		Created:    v.Created,
	}
}

type StepResponse struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	ErrorDetail string     `json:"errorDetail,omitempty"`
}

type ExecutionResponse struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflowId"`
	Version         int             `json:"version"`
	TriggerSource   string          `json:"triggerSource"`
	Status          string          `json:"status"`
	TriggerMetadata json.RawMessage `json:"triggerMetadata,omitempty"`
	ErrorDetail     string          `json:"errorDetail,omitempty"`
	Created         time.Time       `json:"created"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	FinishedAt      *time.Time      `json:"finishedAt,omitempty"`
	Steps           []StepResponse  `json:"steps,omitempty"`
}

func NewExecutionResponse(e *domain.Execution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:              e.ID,
		WorkflowID:      e.WorkflowID,
		Version:         e.Version,
		TriggerSource:   string(e.TriggerSource),
		Status:          string(e.Status),
		TriggerMetadata: e.TriggerMetadata,
		ErrorDetail:     e.ErrorDetail.String,
		Created:         e.Created,
	}
	if e.StartedAt.Valid {
		resp.StartedAt = &e.StartedAt.Time
	}
	if e.FinishedAt.Valid {
		resp.FinishedAt = &e.FinishedAt.Time
	}
	for _, s := range e.Steps {
		step := StepResponse{Name: s.Name, Status: string(s.Status), StartedAt: s.StartedAt, ErrorDetail: s.ErrorDetail.String}
		if s.FinishedAt.Valid {
			step.FinishedAt = &s.FinishedAt.Time
		}
		resp.Steps = append(resp.Steps, step)
	}
	return resp
}

// RunRequest starts a manual run. Version 0 means the current version.
type RunRequest struct {
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// StepRequest is the step callback of an out-of-process worker.
type StepRequest struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt"`
	ErrorDetail string     `json:"errorDetail"`
}

type FinishRequest struct {
	Status      string `json:"status"`
	ErrorDetail string `json:"errorDetail"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
