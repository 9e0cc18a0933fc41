// Package collector buffers browser events for a bounded window.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/classify"
	"github.com/fyrsmithlabs/browserlog/internal/entry"
	"github.com/fyrsmithlabs/browserlog/internal/logging"
	"github.com/fyrsmithlabs/browserlog/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Session is the part of a protocol session the collector consumes.
type Session interface {
	Events() <-chan cdp.Event
	EnabledDomains() []cdp.Domain
	Close(ctx context.Context) error
}

// ReconnectFunc acquires a fresh session with domains enabled.
type ReconnectFunc func(ctx context.Context, domains []cdp.Domain) (Session, error)

// ReconnectConfig controls recovery from a mid-window disconnect.
type ReconnectConfig struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
}

// Config configures a Collector.
type Config struct {
	Window           time.Duration
	MaxEntries       int
	ProgressInterval time.Duration
	Reconnect        ReconnectConfig
}

// DefaultConfig returns the default collection settings.
func DefaultConfig() Config {
	return Config{
		Window:           10 * time.Second,
		MaxEntries:       1000,
		ProgressInterval: time.Second,
		Reconnect: ReconnectConfig{
			Enabled:     true,
			MaxAttempts: 3,
			Delay:       time.Second,
		},
	}
}

// Progress is a periodic snapshot of a running collection.
type Progress struct {
	Elapsed    time.Duration
	Remaining  time.Duration
	Buffered   int
	Suppressed int
	Reconnects int
}

// ProgressFunc observes progress. It must not block.
type ProgressFunc func(Progress)

// Result is the outcome of one collection.
type Result struct {
	Entries      []entry.Entry
	Suppressed   int
	Dropped      int
	Reconnects   int
	StoppedEarly bool
	Duration     time.Duration
}

// Collector gathers entries from a session. It holds no per-collection
// state and is safe for concurrent use.
type Collector struct {
	config   Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	progress ProgressFunc
	now      func() time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Collector) {
		c.progress = fn
	}
}

// WithMetrics records collection counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// WithTracer records a span per collection.
func WithTracer(t trace.Tracer) Option {
	return func(c *Collector) {
		c.tracer = t
	}
}

// WithClock overrides the capture clock.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// New creates a Collector. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaults.ProgressInterval
	}
	if cfg.Reconnect.MaxAttempts <= 0 {
		cfg.Reconnect.MaxAttempts = defaults.Reconnect.MaxAttempts
	}

	c := &Collector{
		config: cfg,
		logger: logger.Named("collector"),
		tracer: noop.NewTracerProvider().Tracer("collector"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// collection is the state of one Collect call.
type collection struct {
	session      Session
	domains      []cdp.Domain
	reconnect    ReconnectFunc
	reconnecting atomic.Bool

	buffer     []entry.Entry
	suppressed int
	dropped    int
	reconnects int

	suppressedLog rate.Sometimes
	droppedLog    rate.Sometimes
}

// Collect buffers entries from session until the window elapses. If the
// session disconnects, reconnect (which may be nil) is used to resume; when
// that fails the entries gathered so far are returned. An error is returned
// only when ctx itself is canceled, together with the partial result.
func (c *Collector) Collect(ctx context.Context, session Session, reconnect ReconnectFunc) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "collector.Collect",
		trace.WithAttributes(attribute.Int64("collector.window_ms", c.config.Window.Milliseconds())),
	)
	defer span.End()

	start := time.Now()
	windowCtx, cancel := context.WithTimeout(ctx, c.config.Window)
	defer cancel()

	col := &collection{
		session:       session,
		domains:       session.EnabledDomains(),
		reconnect:     reconnect,
		suppressedLog: rate.Sometimes{First: 3, Interval: 5 * time.Second},
		droppedLog:    rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	if c.config.MaxEntries > 0 {
		col.buffer = make([]entry.Entry, 0, min(c.config.MaxEntries, 256))
	}

	ticker := time.NewTicker(c.config.ProgressInterval)
	defer ticker.Stop()

	c.logger.Info("collection started",
		zap.Duration("window", c.config.Window),
		zap.Strings("domains", domainNames(col.domains)),
	)

	stoppedEarly := false
	events := col.session.Events()
loop:
	for {
		select {
		case <-windowCtx.Done():
			break loop

		case <-ticker.C:
			c.reportProgress(col, time.Since(start))

		case ev, ok := <-events:
			if !ok {
				if !c.handleDisconnect(windowCtx, col, "event stream closed") {
					stoppedEarly = true
					break loop
				}
				events = col.session.Events()
				continue
			}
			if ev.Method == cdp.EventInspectorDetached || ev.Method == cdp.EventTargetCrashed {
				if !c.handleDisconnect(windowCtx, col, ev.Method) {
					stoppedEarly = true
					break loop
				}
				events = col.session.Events()
				continue
			}
			c.ingest(col, ev)
		}
	}

	result := &Result{
		Entries:      col.buffer,
		Suppressed:   col.suppressed,
		Dropped:      col.dropped,
		Reconnects:   col.reconnects,
		StoppedEarly: stoppedEarly,
		Duration:     time.Since(start),
	}
	span.SetAttributes(
		attribute.Int("collector.entries", len(result.Entries)),
		attribute.Int("collector.suppressed", result.Suppressed),
		attribute.Int("collector.reconnects", result.Reconnects),
		attribute.Bool("collector.stopped_early", stoppedEarly),
	)
	c.logger.Info("collection finished",
		zap.Int("entries", len(result.Entries)),
		zap.Int("suppressed", result.Suppressed),
		zap.Int("dropped", result.Dropped),
		zap.Int("reconnects", result.Reconnects),
		zap.Bool("stopped_early", stoppedEarly),
		zap.Duration("duration", result.Duration),
	)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (c *Collector) ingest(col *collection, ev cdp.Event) {
	if ce := c.logger.Check(logging.TraceLevel, "cdp event"); ce != nil {
		ce.Write(zap.String("method", ev.Method), zap.ByteString("params", ev.Params))
	}

	e, ok, err := decodeEvent(ev, c.now())
	if err != nil {
		col.dropped++
		c.metrics.RecordDropped("decode")
		col.droppedLog.Do(func() {
			c.logger.Warn("dropping undecodable event", zap.String("method", ev.Method), zap.Error(err))
		})
		return
	}
	if !ok {
		c.logger.Debug("ignoring event", zap.String("method", ev.Method))
		return
	}

	if text, check := suppressionText(e); check {
		if class, known := classify.Classify(text); known && classify.ShouldSuppress(class) {
			col.suppressed++
			c.metrics.RecordSuppressed(class.Code)
			col.suppressedLog.Do(func() {
				c.logger.Debug("suppressed known noise",
					zap.String("code", class.Code),
					zap.String("kind", string(e.Kind)),
				)
			})
			return
		}
	}

	if c.config.MaxEntries > 0 && len(col.buffer) >= c.config.MaxEntries {
		col.dropped++
		c.metrics.RecordDropped("capacity")
		col.droppedLog.Do(func() {
			c.logger.Warn("entry buffer full, dropping new entries", zap.Int("max_entries", c.config.MaxEntries))
		})
		return
	}

	col.buffer = append(col.buffer, e)
	c.metrics.RecordCollected(string(e.Kind))
}

// handleDisconnect runs one reconnection effort. It reports whether
// collection should continue.
func (c *Collector) handleDisconnect(ctx context.Context, col *collection, reason string) bool {
	if !col.reconnecting.CompareAndSwap(false, true) {
		c.logger.Debug("reconnection already in progress, ignoring disconnect", zap.String("reason", reason))
		return true
	}
	defer col.reconnecting.Store(false)

	cfg := c.config.Reconnect
	if !cfg.Enabled || col.reconnect == nil {
		c.logger.Warn("session disconnected, reconnection disabled", zap.String("reason", reason))
		return false
	}

	c.logger.Warn("session disconnected, reconnecting",
		zap.String("reason", reason),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Int("buffered", len(col.buffer)),
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := sleep(ctx, cfg.Delay); err != nil {
			c.logger.Info("collection window ended during reconnection", zap.Int("attempt", attempt))
			return false
		}

		next, err := col.reconnect(ctx, col.domains)
		if err != nil {
			c.logger.Warn("reconnection attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", cfg.MaxAttempts),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return false
			}
			continue
		}

		c.closeQuietly(ctx, col.session)
		col.session = next
		col.reconnects++
		c.metrics.RecordReconnect(true)
		c.logger.Info("session reconnected", zap.Int("attempt", attempt), zap.Int("buffered", len(col.buffer)))
		return true
	}

	c.metrics.RecordReconnect(false)
	c.logger.Warn("reconnection attempts exhausted, stopping collection early",
		zap.Int("attempts", cfg.MaxAttempts),
		zap.Int("buffered", len(col.buffer)),
	)
	return false
}

func (c *Collector) closeQuietly(ctx context.Context, s Session) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		c.logger.Debug("closing disconnected session failed", zap.Error(err))
	}
}

func (c *Collector) reportProgress(col *collection, elapsed time.Duration) {
	remaining := c.config.Window - elapsed
	if remaining < 0 {
		remaining = 0
	}
	p := Progress{
		Elapsed:    elapsed,
		Remaining:  remaining,
		Buffered:   len(col.buffer),
		Suppressed: col.suppressed,
		Reconnects: col.reconnects,
	}
	c.logger.Info("collection progress",
		zap.Duration("elapsed", p.Elapsed.Round(time.Millisecond)),
		zap.Duration("remaining", p.Remaining.Round(time.Millisecond)),
		zap.Int("buffered", p.Buffered),
	)
	if c.progress != nil {
		c.progress(p)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func domainNames(domains []cdp.Domain) []string {
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = string(d)
	}
	return out
}
