package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/cronexpr"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
)

// ScheduleConfig is the user supplied part of a schedule.
type ScheduleConfig struct {
	CronExpression string `json:"cron"`
	Timezone       string `json:"timezone"`
	Enabled        bool   `json:"enabled"`
}

// ScheduleService validates schedule configuration on write, so ticks never see an
// expression or timezone that fails to evaluate.
type ScheduleService struct {
	schedules ScheduleRepo
	clock     core.Clock
}

func NewScheduleService(schedules ScheduleRepo, clock core.Clock) *ScheduleService {
	return &ScheduleService{schedules: schedules, clock: clock}
}

// Configure validates cfg and stores it for workflowID. Enabled schedules get next_run_at
// recomputed from now; disabled ones have it cleared.
func (s *ScheduleService) Configure(ctx context.Context, workflowID string, cfg ScheduleConfig) (*domain.WorkflowSchedule, error) {
	expr, err := cronexpr.Parse(cfg.CronExpression, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()

	sched, err := s.schedules.Get(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		sched = &domain.WorkflowSchedule{WorkflowID: workflowID, Created: now}
	} else if err != nil {
		return nil, err
	}
	sched.CronExpression = expr.String()
	sched.Timezone = strings.TrimSpace(cfg.Timezone)
	sched.Enabled = cfg.Enabled
	sched.Modified = now
	sched.NextRunAt = sql.NullTime{}
	if cfg.Enabled {
		next, err := expr.Next(now)
		if err != nil {
			return nil, err
		}
		sched.NextRunAt = sql.NullTime{Time: next, Valid: true}
	}

	if err := s.schedules.Upsert(ctx, sched); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Configured schedule", "workflow_id", workflowID, "cron", sched.CronExpression,
		"timezone", sched.Timezone, "enabled", sched.Enabled, "next_run_at", sched.NextRunAt.Time)
	return sched, nil
}

func (s *ScheduleService) Get(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error) {
	return s.schedules.Get(ctx, workflowID)
}
