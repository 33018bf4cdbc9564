package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// subState is the lifecycle of a one-shot subscription.
type subState int

const (
	subAwaiting subState = iota
	subResolved
	subFailed
	subTimedOut
	subCancelled
)

func (s subState) String() string {
	switch s {
	case subAwaiting:
		return "awaiting_first_match"
	case subResolved:
		return "resolved"
	case subFailed:
		return "failed"
	case subTimedOut:
		return "timed_out"
	case subCancelled:
		return "cancelled"
	}
	return "unknown"
}

// pendingSubscription is an in-flight streaming request that resolves on the
// first correlated message carrying field.
type pendingSubscription struct {
	id       int64
	command  string // Stream type, e.g. "ticks"
	field    string // Payload field that marks the awaited message, e.g. "tick"
	streamID string // Server-side stream id, once a correlated message carried it
	state    subState
	timer    *time.Timer
	result   chan result
}

// expiredStream is an abandoned subscription whose stream id was unknown when
// it was given up. A late correlated message supplies the id to forget.
type expiredStream struct {
	field string
	at    time.Time
}

// expiredTTL bounds how long an abandoned req_id waits for a late message.
const expiredTTL = time.Minute

// finish moves the subscription out of awaiting. Caller holds the channel mutex.
func (s *pendingSubscription) finish(to subState) {
	if s.state != subAwaiting {
		return
	}
	s.state = to
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *pendingSubscription) settle(resp *Response, err error) {
	s.result <- result{resp: resp, err: err}
}

// observe records the stream id carried by a correlated message.
func (s *pendingSubscription) observe(resp *Response) {
	if id := resp.streamID(s.field); id != "" {
		s.streamID = id
	}
}

// cancellationLocked builds the message that stops the stream of s, which has
// already left the pending map. Without a known stream id, forget_all is only
// safe when no other pending subscription shares the command; otherwise the
// req_id is remembered and the stream is forgotten when its first message
// arrives. Caller holds mu.
func (c *Channel) cancellationLocked(s *pendingSubscription) Request {
	if s.streamID != "" {
		return Request{"forget": s.streamID}
	}
	if s.command == "" {
		return nil
	}
	for _, other := range c.subs {
		if other.command == s.command {
			c.rememberExpiredLocked(s)
			return nil
		}
	}
	return Request{"forget_all": s.command}
}

// rememberExpiredLocked records an abandoned req_id and prunes stale ones.
// Caller holds mu.
func (c *Channel) rememberExpiredLocked(s *pendingSubscription) {
	now := time.Now()
	for id, e := range c.expired {
		if now.Sub(e.at) > expiredTTL {
			delete(c.expired, id)
		}
	}
	c.expired[s.id] = expiredStream{field: s.field, at: now}
}

// abandon removes a pending subscription and cancels its stream. It returns
// nil if the subscription was already settled.
func (c *Channel) abandon(id int64, to subState) *pendingSubscription {
	c.mu.Lock()
	s, ok := c.subs[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, id)
	s.finish(to)
	cancel := c.cancellationLocked(s)
	c.mu.Unlock()

	c.forget(cancel)
	return s
}

// SubscribeOnce sends a streaming request and resolves with the first
// correlated message that carries field, then cancels the stream. An empty
// field is inferred from the command (ticks → tick). A correlated error
// message fails with *RemoteError.
func (c *Channel) SubscribeOnce(ctx context.Context, payload Request, field string, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.cfg.SubscribeTimeout
	}
	if payload == nil {
		payload = Request{}
	}
	command := payload.Command()
	if field == "" {
		field = streamFields[command]
	}
	if field == "" {
		return nil, fmt.Errorf("subscribe %q: no stream field known", command)
	}

	cl, id, err := c.nextID()
	if err != nil {
		return nil, err
	}
	payload["subscribe"] = 1
	payload["req_id"] = id

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	s := &pendingSubscription{
		id:      id,
		command: command,
		field:   field,
		state:   subAwaiting,
		result:  make(chan result, 1),
	}

	c.mu.Lock()
	if c.client != cl {
		c.mu.Unlock()
		return nil, ErrConnectionLost
	}
	c.subs[id] = s
	s.timer = time.AfterFunc(timeout, func() { c.expireSubscription(id, timeout) })
	c.mu.Unlock()

	if err := cl.Send(data); err != nil {
		c.takeSubscription(id, subCancelled)
		return nil, fmt.Errorf("send %s: %w", command, err)
	}
	c.sent.Add(1)

	select {
	case r := <-s.result:
		return r.resp, r.err
	case <-ctx.Done():
		if c.abandon(id, subCancelled) != nil {
			return nil, ctx.Err()
		}
		r := <-s.result
		return r.resp, r.err
	}
}

// takeSubscription removes a pending subscription and moves it to state.
// It returns nil if the subscription was already settled.
func (c *Channel) takeSubscription(id int64, to subState) *pendingSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.subs[id]
	if !ok {
		return nil
	}
	delete(c.subs, id)
	s.finish(to)
	return s
}

func (c *Channel) expireSubscription(id int64, timeout time.Duration) {
	s := c.abandon(id, subTimedOut)
	if s == nil {
		return
	}
	c.timeouts.Add(1)
	c.logger.Debug("subscription timed out",
		"req_id", id,
		"command", s.command,
		"timeout", timeout,
	)
	s.settle(nil, fmt.Errorf("%s req_id=%d after %s: %w", s.command, id, timeout, ErrTimeout))
}
