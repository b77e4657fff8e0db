// Package daemon implements the polling transport that drives the local
// control daemon over HTTP.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wirevpn/internal/client/events"
	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn"
	"wirevpn/pkg/protocol"
)

// DefaultPollInterval is how often status is polled while someone listens.
const DefaultPollInterval = 2 * time.Second

const (
	corePath = "/api/core"
	pingPath = "/ping"
)

// Options configures a Client.
type Options struct {
	Env Env
	// Origin is used when Env selects same-origin requests.
	Origin       string
	HTTPClient   *http.Client
	PollInterval time.Duration
}

// Client talks to the control daemon. State changes are synthesized by
// polling status while at least one listener is subscribed.
type Client struct {
	base     string
	http     *http.Client
	interval time.Duration
	bus      *events.Bus

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

var _ vpn.Client = (*Client)(nil)

// New creates a daemon client. The base URL is fixed here for the client's lifetime.
func New(opts Options) *Client {
	base := BaseURL(opts.Env)
	if base == "" {
		base = strings.TrimRight(opts.Origin, "/")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	c := &Client{
		base:     base,
		http:     httpClient,
		interval: interval,
		bus:      events.NewBus(),
	}
	c.bus.OnActive(c.startPolling)
	c.bus.OnIdle(c.stopPolling)
	return c
}

// BaseURL returns the base the client sends requests to.
func (c *Client) BaseURL() string {
	return c.base
}

// call posts a single action to /api/core and decodes the envelope data into out.
func (c *Client) call(ctx context.Context, action string, params, out interface{}) error {
	body, err := json.Marshal(protocol.CoreRequest{Action: action, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+corePath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if !env.OK() {
		return &CoreError{Action: action, Code: env.Code, Message: env.Message}
	}
	if err := env.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", action, err)
	}
	return nil
}

// Connect asks the daemon to bring the tunnel up with cfg.
func (c *Client) Connect(ctx context.Context, cfg vpn.ClientConfig) error {
	return c.call(ctx, protocol.ActionConnect, cfg, nil)
}

// Disconnect asks the daemon to tear the tunnel down.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.call(ctx, protocol.ActionDisconnect, nil, nil)
}

func (c *Client) status(ctx context.Context) (protocol.StatusPayload, error) {
	var payload protocol.StatusPayload
	err := c.call(ctx, protocol.ActionStatus, nil, &payload)
	return payload, err
}

// GetStatus returns a fresh status snapshot.
func (c *Client) GetStatus(ctx context.Context) (vpn.Status, error) {
	payload, err := c.status(ctx)
	if err != nil {
		return vpn.Status{}, err
	}

	return vpn.StatusFromPayload(payload), nil
}

// GetVersion returns the daemon version.
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var payload protocol.VersionPayload
	if err := c.call(ctx, protocol.ActionVersion, nil, &payload); err != nil {
		return "", err
	}
	return payload.Version, nil
}

// GetUDID returns the device id reported in the status payload. When the
// daemon does not report one a random id is generated; it is not persisted.
func (c *Client) GetUDID(ctx context.Context) (string, error) {
	payload, err := c.status(ctx)
	if err != nil {
		return "", err
	}
	if payload.UDID != "" {
		return payload.UDID, nil
	}
	return uuid.NewString(), nil
}

// GetConfig returns the daemon's active configuration.
func (c *Client) GetConfig(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, protocol.ActionConfig, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Subscribe registers l. The first subscriber starts polling.
func (c *Client) Subscribe(l vpn.Listener) func() {
	return c.bus.Subscribe(l)
}

// Destroy stops polling and drops every listener.
func (c *Client) Destroy() {
	c.stopPolling()
	c.bus.Reset()
	logger.Debug("Daemon client destroyed")
}
