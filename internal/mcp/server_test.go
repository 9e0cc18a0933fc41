package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/classify"
	"github.com/fyrsmithlabs/browserlog/internal/collector"
	"github.com/fyrsmithlabs/browserlog/internal/extract"
	"github.com/fyrsmithlabs/browserlog/internal/format"
	"github.com/fyrsmithlabs/browserlog/internal/telemetry"
)

type fakeExtractor struct {
	mu     sync.Mutex
	calls  []extract.Options
	result *extract.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, opts extract.Options) (*extract.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return f.result, f.err
}

func (f *fakeExtractor) lastCall(t *testing.T) extract.Options {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func defaultOptions() extract.Options {
	return extract.Options{
		IncludeNetwork: true,
		IncludeConsole: true,
		IncludeLog:     true,
		Collection:     collector.Config{Window: 10 * time.Second},
		Format:         format.Spec{IncludeTimestamp: true},
	}
}

// connect starts s on an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcp.NewInMemoryTransports()

	ss, err := s.Connect(ctx, serverT)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func newTestServer(t *testing.T, ext Extractor, tel *telemetry.TestTelemetry) *Server {
	t.Helper()
	cfg := DefaultConfig()
	if tel != nil {
		cfg.Metrics = NewMetrics(tel.Meter(instrumentationName), zap.NewNop())
	}
	s, err := NewServer(cfg, ext, defaultOptions())
	require.NoError(t, err)
	return s
}

// structured decodes a tool's structured output into out.
func structured(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

// requireToolError asserts the call failed, either as a protocol error or
// as a tool result flagged IsError.
func requireToolError(t *testing.T, res *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		return
	}
	require.NotNil(t, res)
	assert.True(t, res.IsError)
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, defaultOptions())
	assert.Error(t, err)

	s, err := NewServer(nil, &fakeExtractor{}, defaultOptions())
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
}

func TestServer_ListsTools(t *testing.T) {
	cs := connect(t, newTestServer(t, &fakeExtractor{}, nil))

	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{toolExtract, toolClassify, toolListErrors}, names)
}

func TestExtractTool(t *testing.T) {
	ext := &fakeExtractor{result: &extract.Result{
		ID: "ext-1",
		Records: []format.OutputRecord{{
			Path:         "cdp://groups/console/error",
			Content:      "[2024-01-02T03:04:05.000Z] boom",
			Size:         31,
			LastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}},
		Stats: extract.Stats{Collected: 3, Filtered: 2, Records: 1},
	}}
	tel := telemetry.NewTestTelemetry()
	cs := connect(t, newTestServer(t, ext, tel))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name: toolExtract,
		Arguments: map[string]any{
			"window":              "2s",
			"include_network":     false,
			"log_levels":          []string{"error"},
			"advanced_expression": "boom OR bang",
			"group_by_level":      true,
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	got := ext.lastCall(t)
	assert.Equal(t, 2*time.Second, got.Collection.Window)
	assert.Equal(t, []cdp.Domain{cdp.DomainConsole, cdp.DomainLog}, got.Domains())
	assert.Equal(t, []string{"error"}, got.Filters.LogLevels)
	assert.Equal(t, "boom OR bang", got.Filters.AdvancedExpression)
	assert.Equal(t, format.Spec{GroupByLevel: true, IncludeTimestamp: true}, got.Format)

	var out extractOutput
	structured(t, res, &out)
	assert.Equal(t, "ext-1", out.ID)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "cdp://groups/console/error", out.Records[0].Path)
	assert.Equal(t, "2024-01-02T03:04:05Z", out.Records[0].LastModified)
	assert.False(t, out.Partial)

	assert.Equal(t, int64(1), tel.Sum(t, "browserlog.mcp.tool.invocations_total", attribute.String("tool", toolExtract)))
}

func TestExtractTool_DefaultsWithoutArguments(t *testing.T) {
	ext := &fakeExtractor{result: &extract.Result{ID: "ext-1"}}
	cs := connect(t, newTestServer(t, ext, nil))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: toolExtract, Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, defaultOptions(), ext.lastCall(t))
}

func TestExtractTool_PartialResult(t *testing.T) {
	ext := &fakeExtractor{
		result: &extract.Result{ID: "ext-1", Stats: extract.Stats{StoppedEarly: true}},
		err:    context.Canceled,
	}
	cs := connect(t, newTestServer(t, ext, nil))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: toolExtract, Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out extractOutput
	structured(t, res, &out)
	assert.True(t, out.Partial)
	assert.Equal(t, context.Canceled.Error(), out.Error)
}

func TestExtractTool_Errors(t *testing.T) {
	t.Run("browser not running", func(t *testing.T) {
		tel := telemetry.NewTestTelemetry()
		ext := &fakeExtractor{err: cdp.ErrDebuggerNotRunning}
		cs := connect(t, newTestServer(t, ext, tel))

		res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: toolExtract, Arguments: map[string]any{}})
		requireToolError(t, res, err)
		assert.Equal(t, int64(1), tel.Sum(t, "browserlog.mcp.tool.errors_total", attribute.String("reason", "browser_unavailable")))
	})

	t.Run("invalid window", func(t *testing.T) {
		ext := &fakeExtractor{}
		cs := connect(t, newTestServer(t, ext, nil))

		res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: toolExtract, Arguments: map[string]any{"window": "soon"}})
		requireToolError(t, res, err)
		assert.Empty(t, ext.calls)
	})

	t.Run("no sources", func(t *testing.T) {
		ext := &fakeExtractor{}
		cs := connect(t, newTestServer(t, ext, nil))

		res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: toolExtract, Arguments: map[string]any{
			"include_network": false, "include_console": false, "include_log": false,
		}})
		requireToolError(t, res, err)
		assert.Empty(t, ext.calls)
	})
}

func TestClassifyTool(t *testing.T) {
	cs := connect(t, newTestServer(t, &fakeExtractor{}, nil))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      toolClassify,
		Arguments: map[string]any{"message": "Created TensorFlow Lite XNNPACK delegate for CPU."},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out classifyOutput
	structured(t, res, &out)
	assert.True(t, out.Known)
	assert.True(t, out.Suppressed)
	assert.Equal(t, classify.CodeMLDelegateNoise, out.Code)

	res, err = cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      toolClassify,
		Arguments: map[string]any{"message": "everything is fine"},
	})
	require.NoError(t, err)
	out = classifyOutput{}
	structured(t, res, &out)
	assert.False(t, out.Known)

	res, err = cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      toolClassify,
		Arguments: map[string]any{"message": ""},
	})
	requireToolError(t, res, err)
}

func TestListKnownErrorsTool(t *testing.T) {
	cs := connect(t, newTestServer(t, &fakeExtractor{}, nil))

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: toolListErrors, Arguments: map[string]any{}})
	require.NoError(t, err)

	var out listErrorsOutput
	structured(t, res, &out)
	require.Len(t, out.Classifications, len(classify.Known()))
	assert.Equal(t, classify.CodeDebuggerNotRunning, out.Classifications[0].Code)
}
