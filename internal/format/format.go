// Package format shapes filtered entries into output records.
package format

import (
	"context"
	"strings"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/entry"
	"github.com/fyrsmithlabs/browserlog/internal/filter"
	"github.com/fyrsmithlabs/browserlog/internal/secrets"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Spec controls record shaping.
type Spec struct {
	GroupBySource     bool `json:"groupBySource,omitempty" yaml:"group_by_source,omitempty" koanf:"group_by_source"`
	GroupByLevel      bool `json:"groupByLevel,omitempty" yaml:"group_by_level,omitempty" koanf:"group_by_level"`
	IncludeTimestamp  bool `json:"includeTimestamp,omitempty" yaml:"include_timestamp,omitempty" koanf:"include_timestamp"`
	IncludeStackTrace bool `json:"includeStackTrace,omitempty" yaml:"include_stack_trace,omitempty" koanf:"include_stack_trace"`
}

// Grouped reports whether entries are partitioned into groups.
func (s Spec) Grouped() bool {
	return s.GroupBySource || s.GroupByLevel
}

// OutputRecord is one formatted unit of output: a single entry or a group.
type OutputRecord struct {
	Path         string    `json:"path" yaml:"path" toml:"path"`
	Content      string    `json:"content" yaml:"content" toml:"content"`
	Size         int       `json:"size" yaml:"size" toml:"size"`
	LastModified time.Time `json:"lastModified" yaml:"last_modified" toml:"last_modified"`
}

const (
	entryScheme = "cdp://"
	groupPrefix = entryScheme + "groups/"

	// noLevel keys groups of entries that carry no level, such as network
	// traffic.
	noLevel = "none"
)

// Formatter filters and shapes entries.
type Formatter struct {
	filter   *filter.Engine
	scrubber secrets.Scrubber
	logger   *zap.Logger
	tracer   trace.Tracer
	newID    func() string
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithScrubber redacts secrets from record content.
func WithScrubber(s secrets.Scrubber) Option {
	return func(f *Formatter) {
		if s != nil {
			f.scrubber = s
		}
	}
}

// WithTracer records a span per Format call.
func WithTracer(t trace.Tracer) Option {
	return func(f *Formatter) {
		f.tracer = t
	}
}

// WithIDGenerator overrides the generator of per-entry record ids.
func WithIDGenerator(fn func() string) Option {
	return func(f *Formatter) {
		f.newID = fn
	}
}

// New creates a Formatter that filters through engine first. A nil engine
// keeps every entry.
func New(engine *filter.Engine, logger *zap.Logger, opts ...Option) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = filter.New(filter.Spec{}, logger)
	}
	f := &Formatter{
		filter:   engine,
		scrubber: secrets.NoopScrubber{},
		logger:   logger.Named("format"),
		tracer:   noop.NewTracerProvider().Tracer("format"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format filters entries and shapes the survivors per spec. It returns the
// records and the number of entries that passed the filter.
func (f *Formatter) Format(ctx context.Context, entries []entry.Entry, spec Spec) ([]OutputRecord, int) {
	_, span := f.tracer.Start(ctx, "format.Format",
		trace.WithAttributes(
			attribute.Int("entries.in", len(entries)),
			attribute.Bool("format.grouped", spec.Grouped()),
		),
	)
	defer span.End()

	kept := f.filter.Filter(entries)

	var records []OutputRecord
	if spec.Grouped() {
		records = f.groups(kept, spec)
	} else {
		records = f.singles(kept)
	}

	span.SetAttributes(
		attribute.Int("entries.kept", len(kept)),
		attribute.Int("records", len(records)),
	)
	f.logger.Debug("formatted entries",
		zap.Int("in", len(entries)),
		zap.Int("kept", len(kept)),
		zap.Int("records", len(records)),
	)
	return records, len(kept)
}

func (f *Formatter) singles(entries []entry.Entry) []OutputRecord {
	records := make([]OutputRecord, 0, len(entries))
	for _, en := range entries {
		content, err := en.Serialize()
		if err != nil {
			f.logger.Warn("skipping entry that cannot be serialized", zap.Error(err))
			continue
		}
		records = append(records, f.record(entryScheme+string(en.Kind)+"/"+f.newID(), content, en.Time()))
	}
	return records
}

type group struct {
	key   string
	lines []string
	last  time.Time
}

func (f *Formatter) groups(entries []entry.Entry, spec Spec) []OutputRecord {
	var order []*group
	byKey := make(map[string]*group)
	for _, en := range entries {
		key := groupKey(en, spec)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			order = append(order, g)
		}
		g.lines = append(g.lines, line(en, spec))
		if t := en.Time(); t.After(g.last) {
			g.last = t
		}
	}

	records := make([]OutputRecord, 0, len(order))
	for _, g := range order {
		records = append(records, f.record(groupPrefix+g.key, strings.Join(g.lines, "\n"), g.last))
	}
	return records
}

func (f *Formatter) record(path, content string, modified time.Time) OutputRecord {
	if f.scrubber.IsEnabled() {
		content = f.scrubber.Scrub(content).Scrubbed
	}
	return OutputRecord{
		Path:         path,
		Content:      content,
		Size:         len(content),
		LastModified: modified.UTC(),
	}
}

func groupKey(en entry.Entry, spec Spec) string {
	parts := make([]string, 0, 2)
	if spec.GroupBySource {
		parts = append(parts, string(en.Kind))
	}
	if spec.GroupByLevel {
		level := filter.NormalizeLevel(en.Level())
		if level == "" {
			level = noLevel
		}
		parts = append(parts, level)
	}
	return strings.Join(parts, "/")
}

func line(en entry.Entry, spec Spec) string {
	var b strings.Builder
	if spec.IncludeTimestamp {
		b.WriteString("[")
		b.WriteString(en.Timestamp)
		b.WriteString("] ")
	}
	b.WriteString(en.Text())
	if spec.IncludeStackTrace {
		for _, frame := range en.StackTrace() {
			b.WriteString("\n    ")
			b.WriteString(frame.String())
		}
	}
	return b.String()
}
