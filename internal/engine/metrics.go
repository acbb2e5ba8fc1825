package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/RealZimboGuy/flowtrigger/internal/engine"

// Metrics holds the engine counters. Counters only leave the process when the embedding
// program installs a MeterProvider, either through otel.SetMeterProvider or by passing one
// to NewMetrics.
type Metrics struct {
	dueSchedules     metric.Int64Counter
	claimContention  metric.Int64Counter
	dispatched       metric.Int64Counter
	dispatchFailures metric.Int64Counter
	duplicates       metric.Int64Counter
	transitions      metric.Int64Counter
	rejectedCallback metric.Int64Counter
}

// NewMetrics registers the engine instruments on mp, or on the global MeterProvider when
// mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return NewMetricsWithMeter(mp.Meter(meterName))
}

// orNoop lets components built without metrics record into no-op counters.
func orNoop(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	noopMetrics, _ := NewMetricsWithMeter(noop.NewMeterProvider().Meter(meterName))
	return noopMetrics
}

func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	if m.dueSchedules, err = meter.Int64Counter("flowtrigger.scheduler.due",
		metric.WithDescription("Due schedules seen by scheduler ticks")); err != nil {
		return nil, err
	}
	if m.claimContention, err = meter.Int64Counter("flowtrigger.scheduler.claim_contention",
		metric.WithDescription("Due schedules skipped because another holder owned the claim")); err != nil {
		return nil, err
	}
	if m.dispatched, err = meter.Int64Counter("flowtrigger.dispatch.submitted",
		metric.WithDescription("Runs handed to the task queue")); err != nil {
		return nil, err
	}
	if m.dispatchFailures, err = meter.Int64Counter("flowtrigger.dispatch.failures",
		metric.WithDescription("Dispatches rejected by the task queue")); err != nil {
		return nil, err
	}
	if m.duplicates, err = meter.Int64Counter("flowtrigger.dispatch.duplicates",
		metric.WithDescription("Dispatches collapsed onto an existing execution")); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("flowtrigger.execution.transitions",
		metric.WithDescription("Execution status transitions")); err != nil {
		return nil, err
	}
	if m.rejectedCallback, err = meter.Int64Counter("flowtrigger.execution.rejected_callbacks",
		metric.WithDescription("Tracker callbacks rejected as invalid transitions")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
