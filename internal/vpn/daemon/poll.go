package daemon

import (
	"context"
	"time"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn"
)

// startPolling runs under the bus lock when the first listener subscribes.
func (c *Client) startPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++

	logger.Debug("Polling daemon status every %v", c.interval)
	go c.pollLoop(ctx, c.gen)
}

// stopPolling cancels the poll goroutine. It does not wait for it: the
// goroutine may be blocked publishing to the bus that is calling us.
func (c *Client) stopPolling() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.gen++
	logger.Debug("Stopped polling daemon status")
}

// polling reports whether a poll goroutine is running; used by tests.
func (c *Client) polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// current reports whether gen is the running poll loop. The bus calls it
// under its lock, the same lock the start and stop hooks run under.
func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil && c.gen == gen
}

func (c *Client) pollLoop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Each loop starts with no memory of what was emitted before.
	var last vpn.State
	for {
		last = c.pollOnce(ctx, gen, last)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce fetches status and publishes a state_change only when the state
// differs from last. It returns the new last emitted state. Nothing is
// published once a newer loop has replaced this one.
func (c *Client) pollOnce(ctx context.Context, gen uint64, last vpn.State) vpn.State {
	st, err := c.GetStatus(ctx)
	if ctx.Err() != nil {
		return last
	}
	live := func() bool { return c.current(gen) }
	if err != nil {
		logger.Debug("Status poll failed: %v", err)
		c.bus.PublishIf(vpn.ErrorEvent(err.Error()), live)
		return last
	}
	if st.State == last {
		return last
	}
	if !c.bus.PublishIf(vpn.StateChange(st.State), live) {
		return last
	}
	return st.State
}
