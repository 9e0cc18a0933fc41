package cdp

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/metrics"
	"github.com/fyrsmithlabs/browserlog/internal/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Host        string
	Port        int
	CallTimeout time.Duration
	Retry       retry.Policy
}

// Manager acquires sessions against one browser.
type Manager struct {
	config   ManagerConfig
	client   *DevToolsClient
	dialer   Dialer
	executor *retry.Executor
	logger   *zap.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer replaces the go-rod websocket dialer.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithDevToolsClient replaces the DevTools HTTP client.
func WithDevToolsClient(c *DevToolsClient) ManagerOption {
	return func(m *Manager) {
		m.client = c
	}
}

// WithExecutor replaces the retry executor used for session opening.
func WithExecutor(e *retry.Executor) ManagerOption {
	return func(m *Manager) {
		m.executor = e
	}
}

// WithTracer records spans for connection attempts.
func WithTracer(t trace.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = t
	}
}

// WithManagerMetrics records connection timing.
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager. A nil logger disables logging.
func NewManager(cfg ManagerConfig, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		config: cfg,
		dialer: RodDialer{},
		logger: logger.Named("cdp"),
		tracer: noop.NewTracerProvider().Tracer("cdp"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = NewDevToolsClient(cfg.Host, cfg.Port)
	}
	if m.executor == nil {
		m.executor = retry.NewExecutor(logger)
	}
	return m
}

// Connect probes the endpoint, selects a page target, opens a session with
// retry and enables domains. A domain that fails to enable closes the
// session before the error is returned.
func (m *Manager) Connect(ctx context.Context, domains []Domain) (*Session, error) {
	ctx, span := m.tracer.Start(ctx, "cdp.Connect",
		trace.WithAttributes(attribute.String("cdp.endpoint", m.client.BaseURL())),
	)
	defer span.End()
	start := time.Now()

	session, err := m.connect(ctx, domains)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.metrics.ObserveConnect(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("cdp.target.id", session.Target.ID),
		attribute.String("cdp.session.id", session.ID),
	)
	return session, nil
}

func (m *Manager) connect(ctx context.Context, domains []Domain) (*Session, error) {
	probeCtx, cancel := m.callContext(ctx)
	version, err := m.client.Version(probeCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	m.logger.Debug("debugging endpoint alive",
		zap.String("browser", version.Browser),
		zap.String("protocol", version.ProtocolVersion),
	)

	listCtx, cancel := m.callContext(ctx)
	targets, err := m.client.ListTargets(listCtx)
	cancel()
	if err != nil {
		return nil, err
	}
	target, err := SelectTarget(targets)
	if err != nil {
		return nil, err
	}
	m.logger.Info("target selected",
		zap.String("target.id", target.ID),
		zap.String("url", target.URL),
		zap.String("title", target.Title),
	)

	conn, err := retry.Do(ctx, m.executor, "open session", m.config.Retry, func(ctx context.Context) (Conn, error) {
		dialCtx, cancel := m.callContext(ctx)
		defer cancel()
		return m.dialer.Dial(dialCtx, target.WebSocketDebuggerURL)
	})
	if err != nil {
		return nil, err
	}

	session := newSession(target, conn, m.config.CallTimeout, m.logger)
	if err := session.Enable(ctx, domains...); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cleanupTimeout())
		defer cancel()
		if closeErr := session.Close(cleanupCtx); closeErr != nil {
			m.logger.Warn("failed to close session after enable error", zap.Error(closeErr))
		}
		return nil, err
	}
	return session, nil
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.config.CallTimeout)
}

func (m *Manager) cleanupTimeout() time.Duration {
	if m.config.CallTimeout > 0 {
		return m.config.CallTimeout
	}
	return 5 * time.Second
}
