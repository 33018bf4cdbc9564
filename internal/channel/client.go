package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket connection to the Deriv API. A Client is used
// for one connection only; reconnecting means dialing a new Client.
type Client interface {
	// Connect dials the endpoint and starts the read loop.
	Connect(ctx context.Context) error

	// Close sends a close frame and tears the connection down. No error is
	// reported on Errors.
	Close() error

	// ForceDisconnect drops the connection and reports ErrForcedDisconnect
	// on Errors, as a network failure would.
	ForceDisconnect() error

	// Send writes one text frame.
	Send(data []byte) error

	// Messages delivers every inbound text frame with its receive time.
	Messages() <-chan TimestampedMessage

	// Errors delivers at most one error: the reason the connection died.
	Errors() <-chan error

	IsConnected() bool
}

// ErrForcedDisconnect is reported by ForceDisconnect.
var ErrForcedDisconnect = errors.New("forced disconnect")

type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu        sync.RWMutex
	connected bool
	closed    bool

	dropped atomic.Int64
}

// NewClient creates a WebSocket client. It does not dial until Connect.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}

	dialer := websocket.Dialer{
		Proxy:             websocket.DefaultDialer.Proxy,
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Every pong and every inbound frame pushes the read deadline out. A
	// connection that stays silent past PongTimeout fails its next read.
	c.extendDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	go c.readLoop()
	if c.cfg.PongTimeout > 0 {
		go c.pingLoop()
	}

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

func (c *client) Close() error {
	conn, ok := c.shutdown(nil)
	if !ok || conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *client) ForceDisconnect() error {
	conn, ok := c.shutdown(ErrForcedDisconnect)
	if !ok || conn == nil {
		return nil
	}
	return conn.Close()
}

// shutdown marks the client closed exactly once. A non-nil cause is reported
// before done closes so the owner observes it.
func (c *client) shutdown(cause error) (*websocket.Conn, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	if cause != nil {
		c.report(cause)
	}
	close(c.done)
	return conn, true
}

func (c *client) Send(data []byte) error {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

func (c *client) Errors() <-chan error {
	return c.errors
}

func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// report delivers err unless an earlier error is still unread.
func (c *client) report(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

func (c *client) extendDeadline() {
	if c.cfg.PongTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	}
}

func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally, not a failure.
			default:
				c.report(classifyReadError(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.extendDeadline()

		select {
		case c.messages <- TimestampedMessage{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		default:
			n := c.dropped.Add(1)
			c.logger.Warn("message buffer full, dropping message",
				"buffer_size", c.cfg.BufferSize,
				"dropped_total", n,
			)
		}
	}
}

// classifyReadError maps a read deadline expiry to ErrStaleConnection.
func classifyReadError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrStaleConnection, err)
	}
	return err
}

// pingLoop sends protocol pings at a third of PongTimeout.
func (c *client) pingLoop() {
	interval := c.cfg.PongTimeout / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
