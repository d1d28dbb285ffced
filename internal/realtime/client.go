package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/QuickFix-Capstone/quickfix-messaging/internal/auth"
	"github.com/QuickFix-Capstone/quickfix-messaging/internal/wire"
)

// ErrUnavailable is returned by Call when the realtime channel cannot
// service the request. Callers fall back to the REST gateway; this is
// never a fatal condition.
var ErrUnavailable = errors.New("realtime channel unavailable")

const defaultWriteTimeout = 10 * time.Second

// Options configures a transport client.
type Options struct {
	// Endpoint is the push endpoint URL (ws:// or wss://).
	Endpoint string
	// Identity is sent as a query parameter on connect. Without it,
	// Connect is a silent no-op ("not yet ready").
	Identity string
	// Token, when set, is called once per connection attempt and the
	// result attached as a query parameter.
	Token auth.TokenSource
	// InitialBackoff and MaxBackoff bound the reconnect delay curve.
	// Zero values mean 1s and 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// WriteTimeout bounds each outbound frame write. Zero means 10s.
	WriteTimeout time.Duration

	Logger *zap.Logger
}

// Handler receives one inbound event.
type Handler func(*wire.Inbound)

type handlerEntry struct {
	id int
	fn Handler
}

// Client maintains one persistent connection to the push endpoint and
// exposes a typed publish/subscribe surface over it. Connection
// failures are absorbed by an indefinite reconnect loop; no failure
// mode surfaces as a panic or error to event consumers.
type Client struct {
	opts    Options
	machine *machine
	logger  *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	closed     bool
	retryTimer *time.Timer
	attempt    int

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[wire.EventType][]handlerEntry
	nextID     int

	pendingMu sync.Mutex
	pending   map[string]chan *wire.Response
}

// New creates a transport client. It does not connect.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		opts:     opts,
		logger:   logger,
		handlers: make(map[wire.EventType][]handlerEntry),
		pending:  make(map[string]chan *wire.Response),
	}
	c.machine = newMachine(func(from, to State) {
		c.dispatch(&wire.Inbound{
			Type:   wire.EventStatus,
			Status: &wire.StatusChange{From: string(from), To: string(to)},
		})
	})
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.machine.Current()
}

// Identity returns the identity this client connects as.
func (c *Client) Identity() string {
	return c.opts.Identity
}

// Connect starts connecting. Idempotent: a no-op while already
// connecting or connected, and a silent no-op without an identity.
func (c *Client) Connect() {
	if c.opts.Identity == "" {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err := c.machine.Transition(Connecting); err != nil {
		// Already connecting or connected.
		c.mu.Unlock()
		return
	}
	// An explicit Connect supersedes a scheduled retry.
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.mu.Unlock()
	go c.dial()
}

func (c *Client) dial() {
	u, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		c.logger.Error("invalid realtime endpoint", zap.String("endpoint", c.opts.Endpoint), zap.Error(err))
		c.scheduleReconnect()
		return
	}
	q := u.Query()
	q.Set("identity", c.opts.Identity)
	if c.opts.Token != nil {
		if token, err := c.opts.Token(context.Background()); err == nil {
			q.Set("token", token)
		}
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		c.logger.Warn("realtime dial failed", zap.Error(err))
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempt = 0
	c.mu.Unlock()

	if err := c.machine.Transition(Connected); err != nil {
		c.logger.Warn("unexpected state on connect", zap.Error(err))
	}
	c.logger.Info("realtime connected", zap.String("identity", c.opts.Identity))

	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			current := c.conn == conn
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			if closed || !current {
				return
			}
			c.logger.Warn("realtime connection lost", zap.Error(err))
			c.scheduleReconnect()
			return
		}
		c.dispatch(wire.ParseInbound(data))
	}
}

// scheduleReconnect arms the retry timer with exponentially growing
// delay. Reconnection is attempted indefinitely until Close.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	_ = c.machine.Transition(Reconnecting)
	delay := backoffDelay(c.attempt, c.opts.InitialBackoff, c.opts.MaxBackoff)
	c.attempt++
	attempt := c.attempt
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		if err := c.machine.Transition(Connecting); err != nil {
			return
		}
		c.dial()
	})
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempt))
}

// Send transmits one outbound envelope immediately. Returns false,
// never an error, when the channel is not open or the payload cannot
// be encoded. Callers treat false as "channel unavailable" and fall
// back to REST.
func (c *Client) Send(out wire.Outbound) bool {
	if c.machine.Current() != Connected {
		return false
	}
	data, err := json.Marshal(out)
	if err != nil {
		return false
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}

	timeout := c.opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// The read loop will observe the broken connection and
		// trigger the reconnect cycle.
		return false
	}
	return true
}

// Call sends a correlated request and waits for the matching RESPONSE
// frame or context expiry. A response arriving after the context has
// fired finds no pending entry and is discarded, so a timed-out call
// can never mutate caller state later.
func (c *Client) Call(ctx context.Context, out wire.Outbound) (*wire.Response, error) {
	if out.RequestID == "" {
		out.RequestID = uuid.New().String()
	}

	ch := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[out.RequestID] = ch
	c.pendingMu.Unlock()

	if !c.Send(out) {
		c.unregister(out.RequestID)
		return nil, ErrUnavailable
	}

	select {
	case resp := <-ch:
		if !resp.OK {
			return nil, fmt.Errorf("realtime %s failed: %s", out.Type, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.unregister(out.RequestID)
		return nil, ctx.Err()
	}
}

func (c *Client) unregister(requestID string) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}

// On registers a handler for one inbound event category. Handlers for
// the same category run in registration order. The returned function
// removes exactly this registration.
func (c *Client) On(t wire.EventType, h Handler) func() {
	c.handlersMu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[t] = append(c.handlers[t], handlerEntry{id: id, fn: h})
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		entries := c.handlers[t]
		for i, e := range entries {
			if e.id == id {
				c.handlers[t] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) dispatch(evt *wire.Inbound) {
	if evt.Type == wire.EventResponse && evt.Response != nil {
		c.pendingMu.Lock()
		ch, ok := c.pending[evt.Response.RequestID]
		if ok {
			delete(c.pending, evt.Response.RequestID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- evt.Response
		} else {
			c.logger.Debug("discarding response with no pending request",
				zap.String("request_id", evt.Response.RequestID))
		}
		return
	}

	if evt.Type == wire.EventRaw {
		c.logger.Warn("unrecognized inbound frame", zap.ByteString("frame", evt.Raw))
	}

	c.handlersMu.RLock()
	entries := slices.Clone(c.handlers[evt.Type])
	c.handlersMu.RUnlock()
	for _, e := range entries {
		e.fn(evt)
	}
}

// Close marks the closure as intentional, cancels any pending retry
// timer and releases the connection. The client cannot be reused.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	if c.machine.Current() != Disconnected {
		_ = c.machine.Transition(Disconnected)
	}
	c.logger.Info("realtime client closed")
}
