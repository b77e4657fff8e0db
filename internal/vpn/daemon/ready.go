package daemon

import (
	"context"
	"io"
	"net/http"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn"
)

// ping probes daemon liveness with a plain GET.
func (c *Client) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+pingPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// CheckReady pings the daemon, then asks for its version.
// A failed ping means the daemon is not running and no version call is made.
func (c *Client) CheckReady(ctx context.Context) vpn.ReadyState {
	if err := c.ping(ctx); err != nil {
		logger.Debug("Daemon ping failed: %v", err)
		return vpn.NotReady(vpn.ReasonNotRunning)
	}

	version, err := c.GetVersion(ctx)
	if err != nil {
		logger.Debug("Daemon version check failed: %v", err)
		return vpn.NotReady(vpn.ReasonVersionMismatch)
	}
	return vpn.Ready(version)
}
