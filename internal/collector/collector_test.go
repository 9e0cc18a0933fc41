package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
	"github.com/fyrsmithlabs/browserlog/internal/cdp/cdptest"
	"github.com/fyrsmithlabs/browserlog/internal/entry"
	"github.com/fyrsmithlabs/browserlog/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	conn    *cdptest.Conn
	domains []cdp.Domain

	mu     sync.Mutex
	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		conn:    cdptest.NewConn(),
		domains: []cdp.Domain{cdp.DomainNetwork, cdp.DomainConsole, cdp.DomainLog},
	}
}

func (s *fakeSession) Events() <-chan cdp.Event     { return s.conn.Events() }
func (s *fakeSession) EnabledDomains() []cdp.Domain { return s.domains }
func (s *fakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.conn.Close()
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func consoleMsg(level, text string) map[string]any {
	return map[string]any{"message": map[string]any{"source": "console-api", "level": level, "text": text}}
}

func logEntry(level, text string) map[string]any {
	return map[string]any{"entry": map[string]any{"source": "javascript", "level": level, "text": text, "timestamp": 1700000000000.0}}
}

func request(id, url string) map[string]any {
	return map[string]any{"requestId": id, "request": map[string]any{"url": url, "method": "GET"}, "wallTime": 1700000000.0}
}

func texts(entries []entry.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text()
	}
	return out
}

func shortConfig() Config {
	return Config{
		Window:           200 * time.Millisecond,
		ProgressInterval: time.Hour,
		Reconnect:        ReconnectConfig{Enabled: true, MaxAttempts: 2, Delay: 10 * time.Millisecond},
	}
}

func TestCollect_BuffersUntilWindowEnds(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit(cdp.EventRequestWillBeSent, request("1", "https://example.com/a"))
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "hello"))
	s.conn.Emit(cdp.EventEntryAdded, logEntry("info", "loaded"))
	s.conn.Emit("Page.frameNavigated", map[string]any{})

	start := time.Now()
	res, err := New(shortConfig(), nil).Collect(context.Background(), s, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, []string{"GET https://example.com/a", "hello", "loaded"}, texts(res.Entries))
	assert.False(t, res.StoppedEarly)
	assert.Zero(t, res.Reconnects)
}

func TestCollect_SuppressesKnownNoise(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("warning", "DEPRECATED_ENDPOINT: registration endpoint is deprecated"))
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("warning", "Slow network detected"))
	s.conn.Emit(cdp.EventEntryAdded, logEntry("warning", "Created TensorFlow Lite XNNPACK delegate for CPU."))
	s.conn.Emit(cdp.EventEntryAdded, logEntry("error", "connection refused by upstream"))

	res, err := New(shortConfig(), nil).Collect(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Slow network detected", "connection refused by upstream"}, texts(res.Entries))
	assert.Equal(t, 2, res.Suppressed)
}

func TestCollect_MaxEntries(t *testing.T) {
	s := newFakeSession()
	for i := 0; i < 5; i++ {
		s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "line"))
	}
	cfg := shortConfig()
	cfg.MaxEntries = 3

	res, err := New(cfg, nil).Collect(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Len(t, res.Entries, 3)
	assert.Equal(t, 2, res.Dropped)
}

func TestCollect_SuppressedEntriesTakeNoCapacity(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("warning", "DEPRECATED_ENDPOINT: registration endpoint is deprecated"))
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("error", "first"))
	s.conn.Emit(cdp.EventEntryAdded, logEntry("warning", "Created TensorFlow Lite XNNPACK delegate for CPU."))
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("error", "second"))
	cfg := shortConfig()
	cfg.MaxEntries = 2

	res, err := New(cfg, nil).Collect(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, texts(res.Entries))
	assert.Zero(t, res.Dropped)
	assert.Equal(t, 2, res.Suppressed)
}

func TestCollect_TracesRawEvents(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit("Page.frameNavigated", map[string]any{"frame": "main"})
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "hello"))
	logger := logging.NewTestLogger()

	_, err := New(shortConfig(), logger.Underlying()).Collect(context.Background(), s, nil)
	require.NoError(t, err)

	logger.AssertLogged(t, logging.TraceLevel, "cdp event")
	logger.AssertField(t, "cdp event", "method", "Page.frameNavigated")
	logger.AssertField(t, "cdp event", "method", cdp.EventMessageAdded)
}

func TestCollect_DecodeErrorsAreDropped(t *testing.T) {
	s := newFakeSession()
	s.conn.EmitRaw(cdp.EventMessageAdded, []byte(`{"message": 7}`))
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "fine"))

	res, err := New(shortConfig(), nil).Collect(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fine"}, texts(res.Entries))
	assert.Equal(t, 1, res.Dropped)
}

func TestCollect_ReconnectPreservesBuffer(t *testing.T) {
	first := newFakeSession()
	first.conn.Emit(cdp.EventMessageAdded, consoleMsg("error", "before 1"))
	first.conn.Emit(cdp.EventMessageAdded, consoleMsg("error", "before 2"))
	first.conn.Disconnect()

	second := newFakeSession()
	second.conn.Emit(cdp.EventMessageAdded, consoleMsg("error", "after"))

	var requested [][]cdp.Domain
	reconnect := func(ctx context.Context, domains []cdp.Domain) (Session, error) {
		requested = append(requested, domains)
		return second, nil
	}

	cfg := shortConfig()
	cfg.Reconnect = ReconnectConfig{Enabled: true, MaxAttempts: 2, Delay: 50 * time.Millisecond}
	res, err := New(cfg, nil).Collect(context.Background(), first, reconnect)
	require.NoError(t, err)

	assert.Equal(t, []string{"before 1", "before 2", "after"}, texts(res.Entries))
	assert.Equal(t, 1, res.Reconnects)
	assert.False(t, res.StoppedEarly)
	require.Len(t, requested, 1)
	assert.Equal(t, first.domains, requested[0])
	assert.True(t, first.isClosed())
}

func TestCollect_DetachedEventTriggersReconnect(t *testing.T) {
	first := newFakeSession()
	first.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "one"))
	first.conn.Emit(cdp.EventInspectorDetached, map[string]any{"reason": "target_closed"})

	second := newFakeSession()
	second.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "two"))

	calls := 0
	reconnect := func(ctx context.Context, domains []cdp.Domain) (Session, error) {
		calls++
		return second, nil
	}

	res, err := New(shortConfig(), nil).Collect(context.Background(), first, reconnect)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, texts(res.Entries))
	assert.Equal(t, 1, calls)
}

func TestCollect_ReconnectExhaustedStopsEarly(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "kept"))
	s.conn.Disconnect()

	calls := 0
	reconnect := func(ctx context.Context, domains []cdp.Domain) (Session, error) {
		calls++
		return nil, errors.New("connection refused")
	}

	cfg := shortConfig()
	cfg.Window = 5 * time.Second
	start := time.Now()
	res, err := New(cfg, nil).Collect(context.Background(), s, reconnect)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"kept"}, texts(res.Entries))
}

func TestCollect_ReconnectDisabledStopsEarly(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "kept"))
	s.conn.Disconnect()

	cfg := shortConfig()
	cfg.Window = 5 * time.Second
	cfg.Reconnect.Enabled = false

	res, err := New(cfg, nil).Collect(context.Background(), s, func(ctx context.Context, domains []cdp.Domain) (Session, error) {
		t.Fatal("reconnect must not be called")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, res.StoppedEarly)
	assert.Len(t, res.Entries, 1)
}

func TestHandleDisconnect_IgnoredWhileReconnecting(t *testing.T) {
	c := New(shortConfig(), nil)
	calls := 0
	col := &collection{
		session: newFakeSession(),
		reconnect: func(ctx context.Context, domains []cdp.Domain) (Session, error) {
			calls++
			return newFakeSession(), nil
		},
	}
	col.reconnecting.Store(true)

	assert.True(t, c.handleDisconnect(context.Background(), col, "duplicate"))
	assert.Zero(t, calls)
	assert.Zero(t, col.reconnects)
	assert.True(t, col.reconnecting.Load())
}

func TestCollect_ReportsProgress(t *testing.T) {
	s := newFakeSession()
	var mu sync.Mutex
	var reports []Progress

	cfg := shortConfig()
	cfg.ProgressInterval = 20 * time.Millisecond
	c := New(cfg, nil, WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, p)
	}))

	_, err := c.Collect(context.Background(), s, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reports)
	assert.LessOrEqual(t, reports[0].Elapsed, reports[len(reports)-1].Elapsed)
}

func TestCollect_ParentCanceled(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "partial"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	cfg := shortConfig()
	cfg.Window = 5 * time.Second
	res, err := New(cfg, nil).Collect(ctx, s, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, []string{"partial"}, texts(res.Entries))
}

func TestCollect_UsesClockForMissingTimestamps(t *testing.T) {
	s := newFakeSession()
	s.conn.Emit(cdp.EventMessageAdded, consoleMsg("log", "x"))
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	res, err := New(shortConfig(), nil, WithClock(func() time.Time { return fixed })).Collect(context.Background(), s, nil)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "2030-01-02T03:04:05.000Z", res.Entries[0].Timestamp)
}
