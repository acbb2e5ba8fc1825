package domain

import (
	"database/sql"
	"time"
)

// WorkflowSchedule is the cron configuration and recurrence state of one workflow.
// NextRunAt is null only while the schedule is disabled.
type WorkflowSchedule struct {
	WorkflowID     string
	CronExpression string
	Timezone       string
	Enabled        bool
	NextRunAt      sql.NullTime
	LastRunAt      sql.NullTime
	ClaimToken     sql.NullString
	ClaimExpiresAt sql.NullTime
	Created        time.Time
	Modified       time.Time
}

// Claimed reports whether an unexpired claim exists at now.
func (s *WorkflowSchedule) Claimed(now time.Time) bool {
	return s.ClaimToken.Valid && s.ClaimExpiresAt.Valid && s.ClaimExpiresAt.Time.After(now)
}
