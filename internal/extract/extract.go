// Package extract runs one browser log extraction end to end: connect,
// collect for a window, filter, format, and tear the session down on every
// exit path.
package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/collector"
	"github.com/fyrsmithlabs/browserlog/internal/config"
	"github.com/fyrsmithlabs/browserlog/internal/filter"
	"github.com/fyrsmithlabs/browserlog/internal/format"
	"github.com/fyrsmithlabs/browserlog/internal/logging"
	"github.com/fyrsmithlabs/browserlog/internal/metrics"
	"github.com/fyrsmithlabs/browserlog/internal/retry"
	"github.com/fyrsmithlabs/browserlog/internal/secrets"
	"github.com/fyrsmithlabs/browserlog/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// cleanupTimeout bounds closing sessions after the caller's context is done.
const cleanupTimeout = 5 * time.Second

// Connector opens protocol sessions. *cdp.Manager implements it.
type Connector interface {
	Connect(ctx context.Context, domains []cdp.Domain) (*cdp.Session, error)
}

// Stats summarizes an extraction.
type Stats struct {
	Target       string `json:"target,omitempty"`
	Collected    int    `json:"collected"`
	Suppressed   int    `json:"suppressed"`
	Dropped      int    `json:"dropped"`
	Filtered     int    `json:"filtered"`
	Records      int    `json:"records"`
	Reconnects   int    `json:"reconnects"`
	StoppedEarly bool   `json:"stoppedEarly"`
	FilterError  string `json:"filterError,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}

// Result is the output of Extract.
type Result struct {
	ID      string                `json:"id"`
	Records []format.OutputRecord `json:"records"`
	Stats   Stats                 `json:"stats"`
}

// Extractor runs extractions against one browser. Each Extract call owns
// its sessions and buffer, so concurrent calls are independent.
type Extractor struct {
	connector   Connector
	logger      *logging.Logger
	tracer      trace.Tracer
	meter       metric.Meter
	instruments *instruments
	metrics     *metrics.Metrics
	scrubber    secrets.Scrubber
	progress    collector.ProgressFunc
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTelemetry takes the tracer and meter from tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(e *Extractor) {
		e.tracer = tel.Tracer(InstrumentationName)
		e.meter = tel.Meter(InstrumentationName)
	}
}

// WithScrubber redacts secrets from record content.
func WithScrubber(s secrets.Scrubber) Option {
	return func(e *Extractor) {
		e.scrubber = s
	}
}

// WithMetrics records Prometheus collection counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) {
		e.metrics = m
	}
}

// WithProgress observes collection progress.
func WithProgress(fn collector.ProgressFunc) Option {
	return func(e *Extractor) {
		e.progress = fn
	}
}

// New creates an Extractor. A nil logger disables logging.
func New(connector Connector, logger *logging.Logger, opts ...Option) (*Extractor, error) {
	if connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Extractor{
		connector: connector,
		logger:    logger.Named("extract"),
		scrubber:  secrets.NoopScrubber{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer(InstrumentationName)
	}
	inst, err := newInstruments(e.meter)
	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	e.instruments = inst
	return e, nil
}

// NewFromConfig wires an Extractor for the browser in cfg: a cdp.Manager
// with retry, Prometheus metrics, telemetry and, when enabled, redaction.
func NewFromConfig(cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry, opts ...Option) (*Extractor, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	m := metrics.Default()

	var scrubber secrets.Scrubber = secrets.NoopScrubber{}
	if cfg.Format.Redact {
		sc := secrets.DefaultConfig()
		sc.Gitleaks = cfg.Format.Gitleaks
		s, err := secrets.New(sc)
		if err != nil {
			return nil, fmt.Errorf("create scrubber: %w", err)
		}
		scrubber = s
	}

	zl := logger.Underlying()
	manager := cdp.NewManager(ManagerConfigFromConfig(cfg), zl,
		cdp.WithExecutor(retry.NewExecutor(zl, retry.WithMetrics(m))),
		cdp.WithTracer(tel.Tracer(InstrumentationName)),
		cdp.WithManagerMetrics(m),
	)

	base := []Option{WithTelemetry(tel), WithMetrics(m), WithScrubber(scrubber)}
	return New(manager, logger, append(base, opts...)...)
}

// Extract connects, collects for opts.Collection.Window, then filters and
// formats the buffered entries. Connection failures are returned as they
// are. When ctx ends mid-window the partial result is returned with
// ctx.Err(). Every session acquired is closed before Extract returns.
func (e *Extractor) Extract(ctx context.Context, opts Options) (result *Result, err error) {
	id := uuid.NewString()
	ctx = logging.WithExtractionID(ctx, id)
	ctx, span := e.tracer.Start(ctx, "extract.Extract",
		trace.WithAttributes(attribute.String("extraction.id", id)),
	)
	defer span.End()
	start := time.Now()

	domains := opts.Domains()
	if len(domains) == 0 {
		return nil, ErrNoSources
	}

	var (
		mu       sync.Mutex
		sessions []*cdp.Session
	)
	acquire := func(ctx context.Context, domains []cdp.Domain) (*cdp.Session, error) {
		s, err := e.connector.Connect(ctx, domains)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		sessions = append(sessions, s)
		mu.Unlock()
		return s, nil
	}
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		e.closeAll(ctx, sessions)
	}()

	defer func() {
		outcome := outcomeOK
		switch {
		case result == nil:
			outcome = outcomeError
		case err != nil || result.Stats.StoppedEarly:
			outcome = outcomePartial
		}
		records := 0
		if result != nil {
			records = len(result.Records)
		}
		e.instruments.record(ctx, outcome, records, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	session, err := acquire(ctx, domains)
	if err != nil {
		e.logger.Error(ctx, "connection failed", zap.Error(err))
		return nil, err
	}
	ctx = logging.WithTargetID(ctx, session.Target.ID)
	span.SetAttributes(attribute.String("cdp.target.id", session.Target.ID))
	e.logger.Info(ctx, "extraction started",
		zap.String("target.url", session.Target.URL),
		zap.Duration("window", opts.Collection.Window),
	)

	zl := e.logger.Underlying().With(logging.ContextFields(ctx)...)

	colOpts := []collector.Option{collector.WithTracer(e.tracer), collector.WithMetrics(e.metrics)}
	if e.progress != nil {
		colOpts = append(colOpts, collector.WithProgress(e.progress))
	}
	col := collector.New(opts.Collection, zl, colOpts...)

	collected, collectErr := col.Collect(ctx, session, func(ctx context.Context, domains []cdp.Domain) (collector.Session, error) {
		return acquire(ctx, domains)
	})

	engine := filter.New(opts.Filters, zl)
	formatter := format.New(engine, zl, format.WithScrubber(e.scrubber), format.WithTracer(e.tracer))
	records, kept := formatter.Format(ctx, collected.Entries, opts.Format)

	result = &Result{
		ID:      id,
		Records: records,
		Stats: Stats{
			Target:       session.Target.ID,
			Collected:    len(collected.Entries),
			Suppressed:   collected.Suppressed,
			Dropped:      collected.Dropped,
			Filtered:     len(collected.Entries) - kept,
			Records:      len(records),
			Reconnects:   collected.Reconnects,
			StoppedEarly: collected.StoppedEarly,
			DurationMs:   time.Since(start).Milliseconds(),
		},
	}
	if ferr := engine.Err(); ferr != nil {
		result.Stats.FilterError = ferr.Error()
	}

	span.SetAttributes(
		attribute.Int("extract.collected", result.Stats.Collected),
		attribute.Int("extract.records", result.Stats.Records),
		attribute.Bool("extract.stopped_early", result.Stats.StoppedEarly),
	)
	e.logger.Info(ctx, "extraction finished",
		zap.Int("collected", result.Stats.Collected),
		zap.Int("suppressed", result.Stats.Suppressed),
		zap.Int("filtered", result.Stats.Filtered),
		zap.Int("records", result.Stats.Records),
		zap.Bool("stopped_early", result.Stats.StoppedEarly),
	)
	return result, collectErr
}

func (e *Extractor) closeAll(ctx context.Context, sessions []*cdp.Session) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for i := len(sessions) - 1; i >= 0; i-- {
		if err := sessions[i].Close(closeCtx); err != nil {
			e.logger.Warn(ctx, "session cleanup failed", zap.String("session.id", sessions[i].ID), zap.Error(err))
		}
	}
}
