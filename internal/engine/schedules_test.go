package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/cronexpr"
	"github.com/RealZimboGuy/flowtrigger/internal/domain"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
)

func TestScheduleService_ConfigureComputesNextRun(t *testing.T) {
	f := newFixture(t)
	var stored *domain.WorkflowSchedule
	repo := &MockScheduleRepo{
		UpsertFunc: func(ctx context.Context, s *domain.WorkflowSchedule) error {
			stored = s
			return nil
		},
	}
	svc := NewScheduleService(repo, f.clock)

	// 09:00 UTC is 04:00 in New York in March before DST, next 06:30 local is 11:30 UTC
	sched, err := svc.Configure(context.Background(), "wf", ScheduleConfig{
		CronExpression: "30 6 * * *", Timezone: "America/New_York", Enabled: true,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if stored != sched {
		t.Fatalf("expected the configured schedule to be upserted")
	}
	want := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)
	if !sched.NextRunAt.Valid || !sched.NextRunAt.Time.Equal(want) {
		t.Errorf("expected next run %s, got %+v", want, sched.NextRunAt)
	}
	if !sched.Created.Equal(testStart) {
		t.Errorf("new schedule should be created now, got %s", sched.Created)
	}
}

func TestScheduleService_DisableClearsNextRun(t *testing.T) {
	f := newFixture(t)
	existing := dueAt("wf", "* * * * *", testStart)
	existing.Created = testStart.Add(-time.Hour)
	repo := &MockScheduleRepo{
		GetFunc: func(ctx context.Context, workflowID string) (*domain.WorkflowSchedule, error) {
			return existing, nil
		},
	}
	svc := NewScheduleService(repo, f.clock)

	sched, err := svc.Configure(context.Background(), "wf", ScheduleConfig{CronExpression: "* * * * *", Timezone: "UTC"})
	if err != nil {
		t.Fatal(err)
	}
	if sched.NextRunAt.Valid {
		t.Errorf("disabled schedule must have no next run")
	}
	if !sched.Created.Equal(testStart.Add(-time.Hour)) {
		t.Errorf("created must be kept on update")
	}
}

func TestScheduleService_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	upserts := 0
	repo := &MockScheduleRepo{
		UpsertFunc: func(ctx context.Context, s *domain.WorkflowSchedule) error {
			upserts++
			return nil
		},
	}
	svc := NewScheduleService(repo, f.clock)

	_, err := svc.Configure(context.Background(), "wf", ScheduleConfig{CronExpression: "61 * * * *", Timezone: "UTC", Enabled: true})
	if !errors.Is(err, cronexpr.ErrInvalidExpression) {
		t.Errorf("expected ErrInvalidExpression, got %v", err)
	}
	_, err = svc.Configure(context.Background(), "wf", ScheduleConfig{CronExpression: "* * * * *", Timezone: "Mars/Olympus", Enabled: true})
	if !errors.Is(err, cronexpr.ErrInvalidTimezone) {
		t.Errorf("expected ErrInvalidTimezone, got %v", err)
	}
	if upserts != 0 {
		t.Errorf("invalid input must not be stored")
	}
}

func TestScheduleService_GetPassesNotFound(t *testing.T) {
	f := newFixture(t)
	svc := NewScheduleService(&MockScheduleRepo{}, f.clock)
	if _, err := svc.Get(context.Background(), "wf"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
