package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/extract"
	"github.com/fyrsmithlabs/browserlog/internal/telemetry"
)

func TestMetrics_Begin(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	m := NewMetrics(tel.Meter(instrumentationName), zap.NewNop())
	ctx := context.Background()

	m.Begin(ctx, "test_tool")(nil)
	m.Begin(ctx, "test_tool")(errors.New("invalid window"))

	assert.Equal(t, int64(2), tel.Sum(t, "browserlog.mcp.tool.invocations_total", attribute.String("tool", "test_tool")))
	assert.Equal(t, int64(1), tel.Sum(t, "browserlog.mcp.tool.errors_total", attribute.String("reason", "validation_error")))
	assert.Equal(t, int64(0), tel.Sum(t, "browserlog.mcp.tool.active_requests"))
}

func TestMetrics_ActiveRequests(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	m := NewMetrics(tel.Meter(instrumentationName), zap.NewNop())
	ctx := context.Background()

	first := m.Begin(ctx, "test_tool")
	m.Begin(ctx, "test_tool")
	first(nil)

	assert.Equal(t, int64(1), tel.Sum(t, "browserlog.mcp.tool.active_requests"))
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"debugger not running", fmt.Errorf("probe: %w", cdp.ErrDebuggerNotRunning), "browser_unavailable"},
		{"no target", cdp.ErrNoDebuggableTarget, "browser_unavailable"},
		{"no sources", extract.ErrNoSources, "validation_error"},
		{"deadline", fmt.Errorf("collect: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"invalid input", errors.New("invalid window \"soon\""), "validation_error"},
		{"out of range", errors.New("window must be in (0, 5m0s]"), "validation_error"},
		{"refused", errors.New("dial tcp 127.0.0.1:9222: connect: connection refused"), "connection_error"},
		{"generic error", errors.New("something went wrong"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorizeError(tt.err))
		})
	}
}
