package domain

import "time"

type WebhookTrigger struct {
	ID              string
	WorkflowID      string
	Secret          string
	RateLimitQuota  int
	RateLimitWindow time.Duration
	Revoked         bool
	Created         time.Time
	Modified        time.Time
}
