package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/extract"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/browserlog/internal/mcp"

// Metrics records tool calls served over MCP.
type Metrics struct {
	logger   *zap.Logger
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
	records  metric.Int64Histogram
}

// NewMetrics creates the tool instruments on meter. A nil meter uses the
// global provider. Instruments that fail to register are skipped.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := &Metrics{logger: logger}

	var err error
	if m.calls, err = meter.Int64Counter("browserlog.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls by tool name"),
		metric.WithUnit("{invocation}"),
	); err != nil {
		m.warn("invocations_total", err)
	}
	if m.failures, err = meter.Int64Counter("browserlog.mcp.tool.errors_total",
		metric.WithDescription("Failed MCP tool calls by tool name and reason"),
		metric.WithUnit("{error}"),
	); err != nil {
		m.warn("errors_total", err)
	}
	// Extraction calls last at least one collection window, up to five minutes.
	if m.duration, err = meter.Float64Histogram("browserlog.mcp.tool.duration_seconds",
		metric.WithDescription("Wall time of MCP tool calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 1, 2.5, 5, 10, 30, 60, 120, 300),
	); err != nil {
		m.warn("duration_seconds", err)
	}
	if m.inflight, err = meter.Int64UpDownCounter("browserlog.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls currently running"),
		metric.WithUnit("{request}"),
	); err != nil {
		m.warn("active_requests", err)
	}
	if m.records, err = meter.Int64Histogram("browserlog.mcp.extract.records",
		metric.WithDescription("Output records returned per extraction call"),
		metric.WithUnit("{record}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 50, 100, 500, 1000),
	); err != nil {
		m.warn("extract.records", err)
	}
	return m
}

func (m *Metrics) warn(name string, err error) {
	m.logger.Warn("failed to create mcp instrument", zap.String("instrument", name), zap.Error(err))
}

// Begin marks a call to tool as in flight. The returned func ends it and
// records its outcome.
func (m *Metrics) Begin(ctx context.Context, tool string) func(error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	start := time.Now()
	if m.inflight != nil {
		m.inflight.Add(ctx, 1, attrs)
	}
	return func(err error) {
		if m.inflight != nil {
			m.inflight.Add(ctx, -1, attrs)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("reason", categorizeError(err)),
			))
		}
	}
}

// RecordExtraction records how many records one extraction returned.
func (m *Metrics) RecordExtraction(ctx context.Context, records int, partial bool) {
	if m.records != nil {
		m.records.Record(ctx, int64(records), metric.WithAttributes(attribute.Bool("partial", partial)))
	}
}

// categorizeError maps a tool error to a low-cardinality reason label.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, cdp.ErrDebuggerNotRunning), errors.Is(err, cdp.ErrNoDebuggableTarget):
		return "browser_unavailable"
	case errors.Is(err, extract.ErrNoSources):
		return "validation_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "must be"):
		return "validation_error"
	case strings.Contains(msg, "connect"), strings.Contains(msg, "websocket"):
		return "connection_error"
	default:
		return "internal_error"
	}
}
