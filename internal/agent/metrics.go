// Turn loop metrics instrumentation.
package agent

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/yyup/agentd/internal/agent"

// Metrics holds conversation turn metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	turns    metric.Int64Counter
	rounds   metric.Int64Histogram
	duration metric.Float64Histogram
}

// NewMetrics creates a Metrics instance for the agent loop.
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

	m.turns, err = m.meter.Int64Counter(
		"agentd.turn.turns_total",
		metric.WithDescription("Completed turns by role and outcome"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		m.logger.Warn("failed to create turns counter", zap.Error(err))
	}

	m.rounds, err = m.meter.Int64Histogram(
		"agentd.turn.rounds",
		metric.WithDescription("Think rounds used per turn"),
		metric.WithUnit("{round}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 6, 8, 12),
	)
	if err != nil {
		m.logger.Warn("failed to create rounds histogram", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"agentd.turn.duration_seconds",
		metric.WithDescription("Wall time per turn"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.0, 5.0, 15.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// RecordTurn records one finished turn.
func (m *Metrics) RecordTurn(ctx context.Context, role string, incomplete bool, rounds int, duration time.Duration) {
	outcome := "complete"
	if incomplete {
		outcome = "incomplete"
	}
	attrs := metric.WithAttributes(
		attribute.String("role", role),
		attribute.String("outcome", outcome),
	)
	if m.turns != nil {
		m.turns.Add(ctx, 1, attrs)
	}
	if m.rounds != nil {
		m.rounds.Record(ctx, int64(rounds), attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
}
