package channel

import (
	"errors"
	"time"
)

// handleDisconnect tears down a failed connection and starts the reconnect
// loop. Pending requests of the lost connection fail with ErrConnectionLost
// instead of hanging until their own timeout.
func (c *Channel) handleDisconnect(cl Client, cause error) {
	c.mu.Lock()
	if c.client != cl || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	reqs, subs := c.takePendingLocked()
	c.state = StateReconnecting
	c.mu.Unlock()

	cl.Close()
	failPending(reqs, subs, ErrConnectionLost)

	c.logger.Warn("connection lost",
		"error", cause,
		"failed_requests", len(reqs),
		"failed_subscriptions", len(subs),
	)

	c.wg.Add(1)
	go c.reconnectLoop()
}

// reconnectLoop retries with a fixed delay until a connection opens or the
// attempt budget is spent.
func (c *Channel) reconnectLoop() {
	defer c.wg.Done()

	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		if c.State() != StateReconnecting {
			return
		}

		c.logger.Info("attempting reconnection",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxReconnectAttempts,
		)

		err := c.connect(c.ctx)
		if err == nil {
			c.reconnects.Add(1)
			c.logger.Info("reconnected", "attempt", attempt)
			return
		}
		if errors.Is(err, errSuperseded) || errors.Is(err, ErrClosed) {
			return
		}

		c.logger.Warn("reconnection failed",
			"attempt", attempt,
			"error", err,
		)
	}

	c.mu.Lock()
	gaveUp := c.state == StateReconnecting
	if gaveUp {
		c.state = StateFailed
	}
	c.mu.Unlock()

	if gaveUp {
		c.logger.Error("giving up reconnection",
			"attempts", c.cfg.MaxReconnectAttempts,
			"delay", c.cfg.ReconnectDelay,
		)
	}
}
