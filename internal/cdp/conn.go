package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	rodcdp "github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
)

// Domain is a capability domain that must be enabled before it emits events.
type Domain string

const (
	DomainNetwork Domain = "Network"
	DomainConsole Domain = "Console"
	DomainLog     Domain = "Log"
)

var (
	enableMethods = map[Domain]string{
		DomainNetwork: proto.NetworkEnable{}.ProtoReq(),
		DomainConsole: proto.ConsoleEnable{}.ProtoReq(),
		DomainLog:     proto.LogEnable{}.ProtoReq(),
	}
	disableMethods = map[Domain]string{
		DomainNetwork: proto.NetworkDisable{}.ProtoReq(),
		DomainConsole: proto.ConsoleDisable{}.ProtoReq(),
		DomainLog:     proto.LogDisable{}.ProtoReq(),
	}
)

// Event names delivered by the enabled domains.
var (
	EventRequestWillBeSent = proto.NetworkRequestWillBeSent{}.ProtoEvent()
	EventResponseReceived  = proto.NetworkResponseReceived{}.ProtoEvent()
	EventMessageAdded      = proto.ConsoleMessageAdded{}.ProtoEvent()
	EventEntryAdded        = proto.LogEntryAdded{}.ProtoEvent()
	EventInspectorDetached = proto.InspectorDetached{}.ProtoEvent()
	EventTargetCrashed     = proto.InspectorTargetCrashed{}.ProtoEvent()
)

// Event is a protocol notification.
type Event struct {
	Method string
	Params json.RawMessage
}

// Conn is a duplex protocol channel to one target. The channel returned by
// Events is closed when the connection drops or is closed.
type Conn interface {
	Call(ctx context.Context, method string, params any) error
	Events() <-chan Event
	Close() error
}

// Dialer opens a Conn against a target's session URL.
type Dialer interface {
	Dial(ctx context.Context, wsURL string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, wsURL string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, wsURL string) (Conn, error) {
	return f(ctx, wsURL)
}

// RodDialer dials with go-rod's websocket client.
type RodDialer struct {
	Header     http.Header
	BufferSize int
}

// Dial connects to wsURL and starts pumping events.
func (d RodDialer) Dial(ctx context.Context, wsURL string) (Conn, error) {
	nd := &trackingDialer{}
	ws := &rodcdp.WebSocket{Dialer: nd}
	if err := ws.Connect(ctx, wsURL, d.Header); err != nil {
		// A failed handshake leaves the dialed socket open.
		if nd.conn != nil {
			_ = nd.conn.Close()
		}
		return nil, fmt.Errorf("connect %s: %w", wsURL, err)
	}

	size := d.BufferSize
	if size <= 0 {
		size = 256
	}
	c := &rodConn{
		ws:      ws,
		client:  rodcdp.New().Start(ws),
		events:  make(chan Event, size),
		stopped: make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

// trackingDialer remembers the raw connection it dialed.
type trackingDialer struct {
	net.Dialer
	conn net.Conn
}

func (t *trackingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := t.Dialer.DialContext(ctx, network, address)
	t.conn = conn
	return conn, err
}

type rodConn struct {
	ws        *rodcdp.WebSocket
	client    *rodcdp.Client
	events    chan Event
	stopped   chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// pump forwards top-level target events until the client's channel closes.
// The go-rod client does not read call responses while an event send is
// pending, so once forwarding stops the remaining events are discarded.
func (c *rodConn) pump() {
	defer close(c.events)
	for e := range c.client.Event() {
		if e.SessionID != "" {
			continue
		}
		select {
		case <-c.stopped:
			continue
		default:
		}
		select {
		case c.events <- Event{Method: e.Method, Params: e.Params}:
		case <-c.stopped:
		}
	}
}

func (c *rodConn) Call(ctx context.Context, method string, params any) error {
	_, err := c.client.Call(ctx, "", method, params)
	return err
}

func (c *rodConn) Events() <-chan Event {
	return c.events
}

// StopEvents discards further events so calls still get their responses
// when nobody reads Events.
func (c *rodConn) StopEvents() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

func (c *rodConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.StopEvents()
		err = c.ws.Close()
	})
	return err
}

// eventStopper is implemented by connections that can stop delivering
// events while staying open for calls.
type eventStopper interface {
	StopEvents()
}

var _ Dialer = RodDialer{}
var _ Conn = (*rodConn)(nil)
