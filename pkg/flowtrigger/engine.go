package flowtrigger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	"github.com/RealZimboGuy/flowtrigger/internal/controllers"
	"github.com/RealZimboGuy/flowtrigger/internal/core"
	"github.com/RealZimboGuy/flowtrigger/internal/engine"
	"github.com/RealZimboGuy/flowtrigger/internal/repository"
	"github.com/RealZimboGuy/flowtrigger/internal/webhook"
	"go.opentelemetry.io/otel/metric"
)

// EngineOptions collects the tunables of every engine component.
type EngineOptions struct {
	ExecutorName string

	SchedulerEnabled bool
	Scheduler        engine.SchedulerOptions

	WorkerEnabled bool
	Worker        engine.WorkerOptions

	ReconcileInterval     time.Duration
	ReconcileRunningAfter time.Duration

	Webhook webhook.Options

	// MeterProvider receives the engine counters. Nil uses the global provider, which stays
	// a no-op until the embedding program calls otel.SetMeterProvider.
	MeterProvider metric.MeterProvider
}

func EngineOptionsFromConfig() EngineOptions {
	return EngineOptions{
		ExecutorName:     config.GetSystemSettingString(config.EXECUTOR_NAME),
		SchedulerEnabled: config.GetSystemSettingBool(config.SCHEDULER_ENABLED),
		Scheduler: engine.SchedulerOptions{
			Interval:    config.GetSystemSettingDuration(config.SCHEDULER_TICK_INTERVAL),
			ClaimTTL:    config.GetSystemSettingDuration(config.SCHEDULER_CLAIM_TTL),
			BatchSize:   config.GetSystemSettingInteger(config.SCHEDULER_BATCH_SIZE),
			Parallelism: config.GetSystemSettingInteger(config.SCHEDULER_PARALLELISM),
		},
		WorkerEnabled: config.GetSystemSettingBool(config.WORKER_ENABLED),
		Worker: engine.WorkerOptions{
			Size:         config.GetSystemSettingInteger(config.WORKER_SIZE),
			PollInterval: config.GetSystemSettingDuration(config.WORKER_POLL_INTERVAL),
			Lease:        config.GetSystemSettingDuration(config.WORKER_TASK_LEASE),
			Timeout:      config.GetSystemSettingDuration(config.WORKER_EXECUTION_TIMEOUT),
		},
		ReconcileInterval:     config.GetSystemSettingDuration(config.RECONCILE_INTERVAL),
		ReconcileRunningAfter: config.GetSystemSettingDuration(config.RECONCILE_RUNNING_AFTER),
		Webhook: webhook.Options{
			CountFailedSignatures: config.GetSystemSettingBool(config.WEBHOOK_COUNT_FAILED_SIGNATURES),
			DefaultQuota:          config.GetSystemSettingInteger(config.WEBHOOK_DEFAULT_QUOTA),
			DefaultWindow:         config.GetSystemSettingDuration(config.WEBHOOK_DEFAULT_WINDOW),
		},
	}
}

// Engine is the fully wired trigger and execution stack over one database.
type Engine struct {
	opts    EngineOptions
	clock   core.Clock
	metrics *engine.Metrics

	Schedules  *repository.ScheduleRepository
	Triggers   *repository.WebhookTriggerRepository
	Executions *repository.ExecutionRepository
	Queue      *repository.TaskQueueRepository
	Executors  *repository.ExecutorRepository

	Versions    *engine.VersionManager
	Dispatcher  *engine.Dispatcher
	Tracker     *engine.Tracker
	ScheduleSvc *engine.ScheduleService
	Gateway     *webhook.Gateway
	Reconciler  *engine.Reconciler

	// Built by Run once this process has registered as an executor.
	Holder    string
	Scheduler *engine.Scheduler
	Workers   *engine.WorkerPool
}

// NewEngine wires repositories and services over db. A nil clock means the real clock.
func NewEngine(db *sql.DB, opts EngineOptions, clock core.Clock) (*Engine, error) {
	if clock == nil {
		clock = core.NewRealClock()
	}
	metrics, err := engine.NewMetrics(opts.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	e := &Engine{
		opts:       opts,
		clock:      clock,
		metrics:    metrics,
		Schedules:  repository.NewScheduleRepository(db),
		Triggers:   repository.NewWebhookTriggerRepository(db),
		Executions: repository.NewExecutionRepository(db),
		Queue:      repository.NewTaskQueueRepository(db),
		Executors:  repository.NewExecutorRepository(db),
	}
	e.Versions = engine.NewVersionManager(repository.NewVersionRepository(db), clock)
	e.Dispatcher = engine.NewDispatcher(e.Executions, e.Queue, e.Versions, clock, metrics)
	e.Tracker = engine.NewTracker(e.Executions, clock, metrics)
	e.ScheduleSvc = engine.NewScheduleService(e.Schedules, clock)
	webhookOpts := opts.Webhook
	if webhookOpts.MeterProvider == nil {
		webhookOpts.MeterProvider = opts.MeterProvider
	}
	e.Gateway = webhook.NewGateway(e.Triggers, e.Versions, e.Dispatcher, clock, webhookOpts)
	e.Reconciler = engine.NewReconciler(e.Executions, e.Tracker, clock, opts.ReconcileRunningAfter, opts.ReconcileInterval)
	return e, nil
}

// Run registers this process as an executor, builds the scheduler and worker pool under
// its holder and starts whichever are enabled. Everything stops when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	_, holder, err := engine.RegisterExecutor(ctx, e.Executors, e.opts.ExecutorName, e.clock)
	if err != nil {
		return err
	}
	e.Holder = holder

	schedOpts := e.opts.Scheduler
	schedOpts.Holder = holder
	e.Scheduler = engine.NewScheduler(e.Schedules, e.Versions, e.Dispatcher, e.clock, e.metrics, schedOpts)

	workerOpts := e.opts.Worker
	workerOpts.Holder = holder
	e.Workers = engine.NewWorkerPool(e.Queue, e.Tracker, e.Versions, Actions, e.clock, workerOpts)

	if e.opts.WorkerEnabled {
		e.Dispatcher.OnSubmit(e.Workers.Wakeup)
		go e.Workers.Start(ctx)
	} else {
		slog.InfoContext(ctx, "Worker pool disabled")
	}
	if e.opts.SchedulerEnabled {
		go e.Scheduler.Start(ctx)
	} else {
		slog.InfoContext(ctx, "Scheduler disabled")
	}
	go e.Reconciler.Start(ctx)
	return nil
}

// RegisterRoutes mounts the webhook intake and the admin API on mux.
func (e *Engine) RegisterRoutes(mux *http.ServeMux, apiKey string, maxBodyBytes int64) {
	controllers.NewWebhooksController(e.Gateway, maxBodyBytes, apiKey).RegisterRoutes(mux)
	controllers.NewSchedulesController(e.ScheduleSvc, apiKey).RegisterRoutes(mux)
	controllers.NewVersionsController(e.Versions, apiKey).RegisterRoutes(mux)
	controllers.NewExecutionsController(e.Tracker, e.Dispatcher, apiKey).RegisterRoutes(mux)
	controllers.NewExecutorsController(e.Executors, apiKey).RegisterRoutes(mux)
}

func defaultActions() *engine.ActionRegistry {
	r := engine.NewActionRegistry()
	engine.RegisterBuiltinActions(r)
	return r
}
