package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/browserlog/internal/classify"
	"github.com/fyrsmithlabs/browserlog/internal/extract"
	"github.com/fyrsmithlabs/browserlog/internal/filter"
	"github.com/fyrsmithlabs/browserlog/internal/format"
)

const (
	toolExtract    = "extract_browser_logs"
	toolClassify   = "classify_error"
	toolListErrors = "list_known_errors"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolExtract,
		Description: "Collect network, console and log events from the browser's active page for a time window, then filter and format them",
	}, s.handleExtract)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolClassify,
		Description: "Classify an error or log message against known browser debugging conditions",
	}, s.handleClassify)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolListErrors,
		Description: "List the known error classifications in match order",
	}, s.handleListErrors)
}

// observe records an invocation of tool. Call the returned func with the
// tool's error when it finishes.
func (s *Server) observe(ctx context.Context, tool string) func(error) {
	end := s.metrics.Begin(ctx, tool)
	return func(err error) {
		end(err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", tool), zap.Error(err))
		}
	}
}

// ===== EXTRACTION =====

type extractInput struct {
	Window             string   `json:"window,omitempty" jsonschema:"Collection window as a duration such as 10s or 1m; defaults to the configured window"`
	MaxEntries         *int     `json:"max_entries,omitempty" jsonschema:"Buffer cap; 0 means unbounded"`
	IncludeNetwork     *bool    `json:"include_network,omitempty" jsonschema:"Capture network requests and responses"`
	IncludeConsole     *bool    `json:"include_console,omitempty" jsonschema:"Capture console messages"`
	IncludeLog         *bool    `json:"include_log,omitempty" jsonschema:"Capture browser log entries"`
	LogLevels          []string `json:"log_levels,omitempty" jsonschema:"Keep only these levels (error, warning, info, log, debug)"`
	Sources            []string `json:"sources,omitempty" jsonschema:"Keep only these entry kinds (network, console, log)"`
	Domains            []string `json:"domains,omitempty" jsonschema:"Keep only network entries whose URL contains one of these, case-insensitive; * matches any run of characters"`
	Keywords           []string `json:"keywords,omitempty" jsonschema:"Keep only entries containing one of these, case-sensitive"`
	ExcludePatterns    []string `json:"exclude_patterns,omitempty" jsonschema:"Drop entries matching any of these regular expressions"`
	AdvancedExpression string   `json:"advanced_expression,omitempty" jsonschema:"Boolean expression of terms with AND, OR, NOT and parentheses"`
	GroupBySource      *bool    `json:"group_by_source,omitempty" jsonschema:"Group records by entry kind"`
	GroupByLevel       *bool    `json:"group_by_level,omitempty" jsonschema:"Group records by level"`
	IncludeTimestamp   *bool    `json:"include_timestamp,omitempty" jsonschema:"Prefix grouped lines with their timestamp"`
	IncludeStackTrace  *bool    `json:"include_stack_trace,omitempty" jsonschema:"Append stack frames to grouped lines"`
}

func (in extractInput) overrides(base extract.Options) (extract.Overrides, error) {
	window, err := extract.ParseWindow(in.Window)
	if err != nil {
		return extract.Overrides{}, err
	}
	o := extract.Overrides{
		Window:         window,
		MaxEntries:     in.MaxEntries,
		IncludeNetwork: in.IncludeNetwork,
		IncludeConsole: in.IncludeConsole,
		IncludeLog:     in.IncludeLog,
	}

	spec := filter.Spec{
		LogLevels:          in.LogLevels,
		Sources:            in.Sources,
		Domains:            in.Domains,
		Keywords:           in.Keywords,
		ExcludePatterns:    in.ExcludePatterns,
		AdvancedExpression: in.AdvancedExpression,
	}
	if !spec.IsZero() {
		o.Filters = &spec
	}

	if in.GroupBySource != nil || in.GroupByLevel != nil || in.IncludeTimestamp != nil || in.IncludeStackTrace != nil {
		f := base.Format
		setBool(&f.GroupBySource, in.GroupBySource)
		setBool(&f.GroupByLevel, in.GroupByLevel)
		setBool(&f.IncludeTimestamp, in.IncludeTimestamp)
		setBool(&f.IncludeStackTrace, in.IncludeStackTrace)
		o.Format = &f
	}
	return o, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

type recordOutput struct {
	Path         string `json:"path"`
	Content      string `json:"content"`
	Size         int    `json:"size"`
	LastModified string `json:"last_modified"`
}

type extractOutput struct {
	ID      string         `json:"id"`
	Records []recordOutput `json:"records"`
	Stats   extract.Stats  `json:"stats"`
	Partial bool           `json:"partial"`
	Error   string         `json:"error,omitempty"`
}

func toRecordOutputs(records []format.OutputRecord) []recordOutput {
	out := make([]recordOutput, len(records))
	for i, r := range records {
		out[i] = recordOutput{
			Path:         r.Path,
			Content:      r.Content,
			Size:         r.Size,
			LastModified: r.LastModified.UTC().Format(time.RFC3339Nano),
		}
	}
	return out
}

func (s *Server) handleExtract(ctx context.Context, req *mcp.CallToolRequest, args extractInput) (*mcp.CallToolResult, extractOutput, error) {
	var toolErr error
	done := s.observe(ctx, toolExtract)
	defer func() { done(toolErr) }()

	o, err := args.overrides(s.defaults)
	if err != nil {
		toolErr = err
		return nil, extractOutput{}, err
	}
	opts, err := o.Apply(s.defaults)
	if err != nil {
		toolErr = err
		return nil, extractOutput{}, err
	}

	result, err := s.extractor.Extract(ctx, opts)
	if result == nil {
		if err == nil {
			err = fmt.Errorf("extraction returned no result")
		}
		toolErr = err
		if class, ok := classify.ClassifyError(err); ok {
			return nil, extractOutput{}, fmt.Errorf("%w (%s: %s)", err, class.Code, class.Recommendation)
		}
		return nil, extractOutput{}, err
	}

	out := extractOutput{
		ID:      result.ID,
		Records: toRecordOutputs(result.Records),
		Stats:   result.Stats,
		Partial: err != nil || result.Stats.StoppedEarly,
	}
	if err != nil {
		out.Error = err.Error()
	}
	s.metrics.RecordExtraction(ctx, len(out.Records), out.Partial)

	summary := fmt.Sprintf("Extracted %d records from %d entries (%d suppressed, %d filtered out)",
		result.Stats.Records, result.Stats.Collected, result.Stats.Suppressed, result.Stats.Filtered)
	if out.Partial {
		summary += "; collection stopped early"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: summary}},
	}, out, nil
}

// ===== CLASSIFICATION =====

type classifyInput struct {
	Message string `json:"message" jsonschema:"Error or log message text"`
}

type classifyOutput struct {
	Known          bool   `json:"known"`
	Suppressed     bool   `json:"suppressed"`
	Code           string `json:"code,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Recoverable    bool   `json:"recoverable"`
	Recommendation string `json:"recommendation,omitempty"`
}

func (s *Server) handleClassify(ctx context.Context, req *mcp.CallToolRequest, args classifyInput) (*mcp.CallToolResult, classifyOutput, error) {
	var toolErr error
	done := s.observe(ctx, toolClassify)
	defer func() { done(toolErr) }()

	if args.Message == "" {
		toolErr = fmt.Errorf("message is required")
		return nil, classifyOutput{}, toolErr
	}

	class, known := classify.Classify(args.Message)
	if !known {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "No known classification"}},
		}, classifyOutput{}, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s (%s): %s", class.Code, class.Severity, class.Recommendation)}},
	}, toClassifyOutput(class), nil
}

func toClassifyOutput(c classify.Classification) classifyOutput {
	return classifyOutput{
		Known:          true,
		Suppressed:     classify.ShouldSuppress(c),
		Code:           c.Code,
		Severity:       string(c.Severity),
		Recoverable:    c.Recoverable,
		Recommendation: c.Recommendation,
	}
}

type listErrorsInput struct{}

type listErrorsOutput struct {
	Classifications []classifyOutput `json:"classifications"`
}

func (s *Server) handleListErrors(ctx context.Context, req *mcp.CallToolRequest, args listErrorsInput) (*mcp.CallToolResult, listErrorsOutput, error) {
	done := s.observe(ctx, toolListErrors)
	defer done(nil)

	known := classify.Known()
	out := listErrorsOutput{Classifications: make([]classifyOutput, len(known))}
	for i, c := range known {
		out.Classifications[i] = toClassifyOutput(c)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%d known classifications", len(known))}},
	}, out, nil
}
