// Tool execution metrics instrumentation.
package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/yyup/agentd/internal/orchestrator"

// Metrics holds tool execution metrics.
type Metrics struct {
	meter      metric.Meter
	logger     *zap.Logger
	executions metric.Int64Counter
	retries    metric.Int64Counter
	denials    metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics creates a Metrics instance for the orchestrator.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.executions, err = m.meter.Int64Counter(
		"agentd.tool.executions_total",
		metric.WithDescription("Total tool calls by tool and terminal status"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create executions counter", zap.Error(err))
	}

	m.retries, err = m.meter.Int64Counter(
		"agentd.tool.retries_total",
		metric.WithDescription("Total failed-to-pending requeues by tool"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		m.logger.Warn("failed to create retries counter", zap.Error(err))
	}

	m.denials, err = m.meter.Int64Counter(
		"agentd.tool.denials_total",
		metric.WithDescription("Tool calls rejected by the permission gate, by tool and role"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create denials counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"agentd.tool.call_duration_seconds",
		metric.WithDescription("Wall time from call acceptance to terminal state"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// RecordExecution records one terminal call.
func (m *Metrics) RecordExecution(ctx context.Context, tool string, status Status, retries int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", string(status)),
	)
	if m.executions != nil {
		m.executions.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordRetry records one requeue.
func (m *Metrics) RecordRetry(ctx context.Context, tool string) {
	if m.retries != nil {
		m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

// RecordDenial records one gate rejection.
func (m *Metrics) RecordDenial(ctx context.Context, tool, role string) {
	if m.denials != nil {
		m.denials.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("role", role),
		))
	}
}
