package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// errSuperseded is returned by connect when another connect won the race.
var errSuperseded = errors.New("connection superseded")

// Channel multiplexes request/response and one-shot subscription exchanges
// over one WebSocket connection.
type Channel struct {
	cfg       Config
	logger    *slog.Logger
	newClient func(ClientConfig, *slog.Logger) Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Everything below is guarded by mu. The dispatch loop and the
	// request-issuing goroutines are the only writers.
	mu         sync.Mutex
	client     Client
	connDone   chan struct{} // Closed when the current connection's loops must stop
	state      State
	lastID     int64  // Never reset, including across reconnects
	generation uint64 // Incremented on every open
	requests   map[int64]*pendingRequest
	subs       map[int64]*pendingSubscription
	expired    map[int64]expiredStream
	authorized string
	listeners  []func()

	// Counters
	sent       atomic.Int64
	received   atomic.Int64
	dropped    atomic.Int64
	timeouts   atomic.Int64
	reconnects atomic.Int64
}

// Option configures a Channel.
type Option func(*Channel)

// WithClientFactory replaces the WebSocket client constructor.
func WithClientFactory(fn func(ClientConfig, *slog.Logger) Client) Option {
	return func(c *Channel) {
		c.newClient = fn
	}
}

// New creates a Channel. It does not connect; call Open.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	applyConfigDefaults(&cfg)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		requests:  make(map[int64]*pendingRequest),
		subs:      make(map[int64]*pendingSubscription),
		expired:   make(map[int64]expiredStream),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func applyConfigDefaults(cfg *Config) {
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
}

// Open establishes the connection. Any previous connection is closed and its
// pending requests fail with ErrConnectionLost. The id counter is not reset;
// the authorization marker is cleared.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.client
	if old != nil {
		c.detachLocked()
	}
	reqs, subs := c.takePendingLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	failPending(reqs, subs, ErrConnectionLost)

	err := c.connect(ctx)
	if errors.Is(err, errSuperseded) {
		return nil
	}
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateFailed
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// connect dials a fresh client and, if the channel still wants one, makes it
// the live connection.
func (c *Channel) connect(ctx context.Context) error {
	clientCfg := DefaultClientConfig()
	clientCfg.URL = c.cfg.URL
	clientCfg.PongTimeout = 0
	if c.cfg.PingInterval > 0 {
		clientCfg.PongTimeout = 3 * c.cfg.PingInterval
	}
	clientCfg.WriteTimeout = c.cfg.WriteTimeout
	clientCfg.BufferSize = c.cfg.BufferSize
	cl := c.newClient(clientCfg, c.logger)

	if err := cl.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateReconnecting:
	case StateClosed:
		c.mu.Unlock()
		cl.Close()
		return ErrClosed
	default:
		c.mu.Unlock()
		cl.Close()
		return errSuperseded
	}
	done := make(chan struct{})
	c.client = cl
	c.connDone = done
	c.state = StateOpen
	c.generation++
	c.authorized = ""
	listeners := append([]func(){}, c.listeners...)
	c.mu.Unlock()

	c.wg.Add(2)
	go c.dispatchLoop(cl, done)
	go c.keepaliveLoop(cl, done)

	c.logger.Info("channel open", "url", c.cfg.URL)

	for _, fn := range listeners {
		fn()
	}
	return nil
}

// Close shuts the channel down for good. Pending requests fail with ErrClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	cl := c.client
	if cl != nil {
		c.detachLocked()
	}
	reqs, subs := c.takePendingLocked()
	c.mu.Unlock()

	c.cancel()
	if cl != nil {
		cl.Close()
	}
	failPending(reqs, subs, ErrClosed)

	c.wg.Wait()
	c.logger.Info("channel closed")
	return nil
}

// OnOpen registers fn to run after every successful open, including
// reconnects. fn runs on the opening goroutine and must not block.
func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Generation identifies the current connection. It changes on every open, so
// a caller can tell whether a reply came from the connection still live.
func (c *Channel) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// MarkAuthorized records the token authorized on the connection identified by
// generation. It reports false and records nothing when that connection is no
// longer the live one.
func (c *Channel) MarkAuthorized(token string, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation || c.state != StateOpen {
		return false
	}
	c.authorized = token
	return true
}

// Authorized returns the token authorized on the current connection, or ""
// when the connection has not been authorized since it opened.
func (c *Channel) Authorized() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorized
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	st := Stats{
		State:                c.state,
		PendingRequests:      len(c.requests),
		PendingSubscriptions: len(c.subs),
		LastID:               c.lastID,
	}
	c.mu.Unlock()

	st.Sent = c.sent.Load()
	st.Received = c.received.Load()
	st.Dropped = c.dropped.Load()
	st.Timeouts = c.timeouts.Load()
	st.Reconnects = c.reconnects.Load()
	return st
}

// Send transmits payload with the next correlation id and waits for the
// correlated reply. Replies carrying an error field are returned as normal
// responses; the returned error is only ever local (not connected, encode,
// transmit, timeout, connection lost, context).
func (c *Channel) Send(ctx context.Context, payload Request, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	if payload == nil {
		payload = Request{}
	}

	cl, id, err := c.nextID()
	if err != nil {
		return nil, err
	}
	payload["req_id"] = id

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	p := &pendingRequest{
		id:        id,
		command:   payload.Command(),
		createdAt: time.Now(),
		result:    make(chan result, 1),
	}

	c.mu.Lock()
	if c.client != cl {
		c.mu.Unlock()
		return nil, ErrConnectionLost
	}
	c.requests[id] = p
	p.timer = time.AfterFunc(timeout, func() { c.expireRequest(id, timeout) })
	c.mu.Unlock()

	if err := cl.Send(data); err != nil {
		c.takeRequest(id)
		return nil, fmt.Errorf("send %s: %w", p.command, err)
	}
	c.sent.Add(1)

	select {
	case r := <-p.result:
		return r.resp, r.err
	case <-ctx.Done():
		if c.takeRequest(id) != nil {
			return nil, ctx.Err()
		}
		// Settled concurrently; the result is already buffered.
		r := <-p.result
		return r.resp, r.err
	}
}

// nextID reserves a correlation id on the live connection.
func (c *Channel) nextID() (Client, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen || c.client == nil {
		return nil, 0, ErrNotConnected
	}
	c.lastID++
	return c.client, c.lastID, nil
}

// takeRequest removes a pending request and stops its timer. It returns nil
// if the request was already settled.
func (c *Channel) takeRequest(id int64) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.requests[id]
	if !ok {
		return nil
	}
	delete(c.requests, id)
	p.timer.Stop()
	return p
}

func (c *Channel) expireRequest(id int64, timeout time.Duration) {
	p := c.takeRequest(id)
	if p == nil {
		return
	}
	c.timeouts.Add(1)
	c.logger.Debug("request timed out",
		"req_id", id,
		"command", p.command,
		"timeout", timeout,
	)
	p.settle(nil, fmt.Errorf("%s req_id=%d after %s: %w", p.command, id, timeout, ErrTimeout))
}

// dispatchLoop feeds inbound frames of one connection to dispatch, in order.
func (c *Channel) dispatchLoop(cl Client, done chan struct{}) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-done:
			return
		case err := <-cl.Errors():
			c.drain(cl)
			c.handleDisconnect(cl, err)
			return
		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			c.received.Add(1)
			c.dispatch(msg.Data, msg.ReceivedAt)
		}
	}
}

// drain dispatches frames the read loop buffered before it reported the
// connection error, so replies that did arrive still settle their requests.
func (c *Channel) drain(cl Client) {
	for {
		select {
		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			c.received.Add(1)
			c.dispatch(msg.Data, msg.ReceivedAt)
		default:
			return
		}
	}
}

// dispatch routes one inbound frame to its pending request or subscription.
func (c *Channel) dispatch(data []byte, receivedAt time.Time) {
	resp, ok := parseResponse(data, receivedAt)
	if !ok {
		c.dropped.Add(1)
		c.logger.Debug("dropping unparseable message", "bytes", len(data))
		return
	}
	if resp.ReqID < 0 {
		c.dropped.Add(1)
		c.logger.Debug("dropping uncorrelated message", "msg_type", resp.MsgType)
		return
	}

	c.mu.Lock()
	if s, ok := c.subs[resp.ReqID]; ok {
		switch {
		case resp.Error != nil:
			delete(c.subs, s.id)
			s.finish(subFailed)
			c.mu.Unlock()
			s.settle(nil, resp.Error)
		case resp.Has(s.field):
			delete(c.subs, s.id)
			s.finish(subResolved)
			s.observe(resp)
			cancel := c.cancellationLocked(s)
			c.mu.Unlock()
			c.forget(cancel)
			s.settle(resp, nil)
		default:
			s.observe(resp)
			c.mu.Unlock()
			c.logger.Debug("ignoring non-terminal stream message",
				"req_id", resp.ReqID,
				"msg_type", resp.MsgType,
			)
		}
		return
	}

	if p, ok := c.requests[resp.ReqID]; ok {
		delete(c.requests, p.id)
		p.timer.Stop()
		c.mu.Unlock()
		p.settle(resp, nil)
		return
	}

	if e, ok := c.expired[resp.ReqID]; ok {
		// Late first message of an abandoned stream: now its id is known.
		id := resp.streamID(e.field)
		if id != "" || resp.Error != nil {
			delete(c.expired, resp.ReqID)
		}
		c.mu.Unlock()
		if id != "" {
			c.logger.Debug("cancelling late stream", "req_id", resp.ReqID, "stream_id", id)
			c.forget(Request{"forget": id})
		}
		return
	}
	c.mu.Unlock()

	c.dropped.Add(1)
	c.logger.Debug("dropping message with unknown req_id",
		"req_id", resp.ReqID,
		"msg_type", resp.MsgType,
	)
}

// keepaliveLoop sends a fire-and-forget ping while the connection is open.
func (c *Channel) keepaliveLoop(cl Client, done chan struct{}) {
	defer c.wg.Done()

	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	ping := []byte(`{"ping":1}`)
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := cl.Send(ping); err != nil {
				c.logger.Debug("failed to send keep-alive ping", "error", err)
				continue
			}
			c.sent.Add(1)
		}
	}
}

// forget sends a best-effort stream cancellation. Delivery is not confirmed.
func (c *Channel) forget(msg Request) {
	if msg == nil {
		return
	}
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := cl.Send(data); err != nil {
		c.logger.Debug("failed to send stream cancellation", "error", err)
		return
	}
	c.sent.Add(1)
}

// detachLocked stops the loops of the current connection. Caller holds mu.
func (c *Channel) detachLocked() {
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
	c.client = nil
}

// takePendingLocked empties both pending maps. Caller holds mu.
func (c *Channel) takePendingLocked() ([]*pendingRequest, []*pendingSubscription) {
	reqs := make([]*pendingRequest, 0, len(c.requests))
	for id, p := range c.requests {
		p.timer.Stop()
		reqs = append(reqs, p)
		delete(c.requests, id)
	}
	subs := make([]*pendingSubscription, 0, len(c.subs))
	for id, s := range c.subs {
		s.finish(subCancelled)
		subs = append(subs, s)
		delete(c.subs, id)
	}
	// Streams die with their connection.
	clear(c.expired)
	return reqs, subs
}

func failPending(reqs []*pendingRequest, subs []*pendingSubscription, err error) {
	for _, p := range reqs {
		p.settle(nil, err)
	}
	for _, s := range subs {
		s.settle(nil, err)
	}
}

// result is what a waiting caller receives.
type result struct {
	resp *Response
	err  error
}

// pendingRequest is an in-flight single-shot request.
type pendingRequest struct {
	id        int64
	command   string
	createdAt time.Time
	timer     *time.Timer
	result    chan result
}

// settle delivers the outcome. Only the goroutine that removed the request
// from the pending map calls it, so it runs at most once.
func (p *pendingRequest) settle(resp *Response, err error) {
	p.result <- result{resp: resp, err: err}
}
