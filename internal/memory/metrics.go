// Memory metrics instrumentation.
package memory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/yyup/agentd/internal/memory"

// Metrics holds memory manager metrics.
type Metrics struct {
	meter      metric.Meter
	logger     *zap.Logger
	writes     metric.Int64Counter
	retrievals metric.Int64Counter
	evictions  metric.Int64Counter
	fallbacks  metric.Int64Counter
	hits       metric.Int64Histogram
}

// NewMetrics creates a Metrics instance for the memory manager.
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

	m.writes, err = m.meter.Int64Counter(
		"agentd.memory.writes_total",
		metric.WithDescription("Total memory records written by dimension"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		m.logger.Warn("failed to create writes counter", zap.Error(err))
	}

	m.retrievals, err = m.meter.Int64Counter(
		"agentd.memory.retrievals_total",
		metric.WithDescription("Total retrieval operations by dimension"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		m.logger.Warn("failed to create retrievals counter", zap.Error(err))
	}

	m.evictions, err = m.meter.Int64Counter(
		"agentd.memory.evictions_total",
		metric.WithDescription("Total records removed by reason (expired, capacity) and dimension"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		m.logger.Warn("failed to create evictions counter", zap.Error(err))
	}

	m.fallbacks, err = m.meter.Int64Counter(
		"agentd.memory.lexical_fallbacks_total",
		metric.WithDescription("Retrievals served by the lexical fallback because vector search was unavailable"),
		metric.WithUnit("{retrieval}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fallbacks counter", zap.Error(err))
	}

	m.hits, err = m.meter.Int64Histogram(
		"agentd.memory.retrieval_hits",
		metric.WithDescription("Results returned per retrieval"),
		metric.WithUnit("{record}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 25, 50),
	)
	if err != nil {
		m.logger.Warn("failed to create hits histogram", zap.Error(err))
	}
}

// RecordWrite records one write.
func (m *Metrics) RecordWrite(ctx context.Context, dim Dimension) {
	if m.writes != nil {
		m.writes.Add(ctx, 1, metric.WithAttributes(attribute.String("dimension", string(dim))))
	}
}

// RecordRetrieval records one retrieval and its hit count.
func (m *Metrics) RecordRetrieval(ctx context.Context, dim Dimension, hits int) {
	attrs := metric.WithAttributes(attribute.String("dimension", string(dim)))
	if m.retrievals != nil {
		m.retrievals.Add(ctx, 1, attrs)
	}
	if m.hits != nil {
		m.hits.Record(ctx, int64(hits), attrs)
	}
}

// RecordEviction records removed records.
func (m *Metrics) RecordEviction(ctx context.Context, dim Dimension, reason string, count int) {
	if m.evictions != nil {
		m.evictions.Add(ctx, int64(count), metric.WithAttributes(
			attribute.String("dimension", string(dim)),
			attribute.String("reason", reason),
		))
	}
}

// RecordFallback records one lexical fallback.
func (m *Metrics) RecordFallback(ctx context.Context) {
	if m.fallbacks != nil {
		m.fallbacks.Add(ctx, 1)
	}
}
