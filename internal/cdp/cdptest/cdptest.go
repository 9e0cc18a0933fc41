// Package cdptest provides an in-memory browser for tests: a DevTools HTTP
// endpoint and protocol connections fed by synthetic events.
package cdptest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/fyrsmithlabs/browserlog/internal/cdp"
)

// Conn is a scripted cdp.Conn.
type Conn struct {
	mu       sync.Mutex
	calls    []string
	failOn   map[string]error
	events   chan cdp.Event
	closed   bool
	closeErr error
}

// NewConn creates a connection with a buffered event channel.
func NewConn() *Conn {
	return &Conn{
		failOn: make(map[string]error),
		events: make(chan cdp.Event, 64),
	}
}

// FailOn makes calls to method return err.
func (c *Conn) FailOn(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOn[method] = err
}

// Emit delivers an event with params marshaled to JSON. Emitting on a
// disconnected conn is a no-op.
func (c *Conn) Emit(method string, params any) {
	data, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	c.EmitRaw(method, data)
}

// EmitRaw delivers an event with raw params.
func (c *Conn) EmitRaw(method string, params json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- cdp.Event{Method: method, Params: params}
}

// Disconnect simulates the browser dropping the connection.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// Calls returns the methods called so far.
func (c *Conn) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// IsClosed reports whether the conn was closed or disconnected.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Call(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, method)
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return errors.New("connection closed")
	}
	return c.failOn[method]
}

func (c *Conn) Events() <-chan cdp.Event {
	return c.events
}

func (c *Conn) Close() error {
	c.Disconnect()
	return c.closeErr
}

// Dialer hands out queued results in order, then fails.
type Dialer struct {
	mu      sync.Mutex
	results []DialResult
	dials   int
	urls    []string
}

// DialResult is one scripted Dial outcome.
type DialResult struct {
	Conn *Conn
	Err  error
}

// NewDialer creates a Dialer returning results in order.
func NewDialer(results ...DialResult) *Dialer {
	return &Dialer{results: results}
}

// Queue appends further dial outcomes.
func (d *Dialer) Queue(results ...DialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, results...)
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// URLs returns the session URLs dialed.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func (d *Dialer) Dial(ctx context.Context, wsURL string) (cdp.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, wsURL)
	if len(d.results) == 0 {
		return nil, errors.New("connection refused: no scripted dial result")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Conn, nil
}

// Browser serves /json/version and /json/list.
type Browser struct {
	*httptest.Server

	mu            sync.Mutex
	versionStatus int
	targets       []cdp.TargetInfo
}

// NewBrowser starts a DevTools endpoint listing targets. Close it when done.
func NewBrowser(targets ...cdp.TargetInfo) *Browser {
	b := &Browser{versionStatus: http.StatusOK, targets: targets}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		status := b.versionStatus
		b.mu.Unlock()
		if status != http.StatusOK {
			http.Error(w, "remote debugging disabled", status)
			return
		}
		writeJSON(w, cdp.VersionInfo{Browser: "Chrome/130.0.0.0", ProtocolVersion: "1.3"})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		targets := append([]cdp.TargetInfo(nil), b.targets...)
		b.mu.Unlock()
		writeJSON(w, targets)
	})
	b.Server = httptest.NewServer(mux)
	return b
}

// SetVersionStatus makes the liveness probe answer with status.
func (b *Browser) SetVersionStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.versionStatus = status
}

// Page returns a page target with a session URL.
func Page(id, url string) cdp.TargetInfo {
	return cdp.TargetInfo{
		ID:                   id,
		Type:                 "page",
		Title:                id,
		URL:                  url,
		WebSocketDebuggerURL: "ws://127.0.0.1/devtools/page/" + id,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
