// Package transport opens and owns the duplex broker connection. It exposes
// the connect/disconnect lifecycle and room-scoped topic subscriptions; frame
// decoding belongs to the session layer.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pcameron/huddle/internal/domain"
)

var ErrClosed = errors.New("transport: connection closed")

// Frame is one inbound broker frame. Payloads are opaque to this layer.
type Frame struct {
	Destination string
	Body        json.RawMessage
}

// Handle is a live broker connection. It is exclusively owned by one session
// controller; Close is idempotent and safe on an already-dropped connection.
type Handle interface {
	Subscribe(topic string, onFrame func(Frame)) error
	Send(destination string, body any) error
	Close() error
}

// Dialer opens broker connections. The session controller depends on this
// interface so tests can substitute a fake broker.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Handle, error)
}

// WebSocketDialer dials the broker endpoint over a gorilla websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
}

func NewDialer() *WebSocketDialer {
	return &WebSocketDialer{HandshakeTimeout: 10 * time.Second}
}

// Dial connects to the broker. http(s) endpoints are rewritten to ws(s).
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Handle, error) {
	wsURL := endpoint
	if after, ok := strings.CutPrefix(endpoint, "https://"); ok {
		wsURL = "wss://" + after
	} else if after, ok := strings.CutPrefix(endpoint, "http://"); ok {
		wsURL = "ws://" + after
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	return newConn(conn), nil
}

// Conn wraps a websocket connection with serialized writes, an idempotent
// close and a single read loop that dispatches inbound frames to topic
// handlers in arrival order.
type Conn struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	reading  bool
	handlers map[string]func(Frame)
}

func newConn(c *websocket.Conn) *Conn {
	return &Conn{
		conn:     c,
		handlers: make(map[string]func(Frame)),
	}
}

// Subscribe binds a handler to one room topic and announces the subscription
// to the broker. The read loop starts on the first subscription; handlers run
// on its goroutine, so delivery order matches broker order.
func (c *Conn) Subscribe(topic string, onFrame func(Frame)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.handlers[topic] = onFrame
	startLoop := !c.reading
	c.reading = true
	c.mu.Unlock()

	if err := c.writeEnvelope(domain.Envelope{
		Op:          domain.OpSubscribe,
		Destination: topic,
	}); err != nil {
		return err
	}

	if startLoop {
		go c.readLoop()
	}
	return nil
}

// Send emits one outbound frame to a broker destination.
func (c *Conn) Send(destination string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode frame body: %w", err)
	}

	return c.writeEnvelope(domain.Envelope{
		Op:          domain.OpSend,
		Destination: destination,
		Body:        raw,
	})
}

func (c *Conn) writeEnvelope(env domain.Envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// readLoop delivers frames until the connection drops. There is no
// reconnection: a dead connection simply stops delivering and subsequent
// sends fail, which the session layer treats as a documented limitation.
func (c *Conn) readLoop() {
	defer c.Close()

	for {
		var env domain.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}

		c.mu.Lock()
		handler := c.handlers[env.Destination]
		c.mu.Unlock()

		if handler != nil {
			handler(Frame{Destination: env.Destination, Body: env.Body})
		}
	}
}
