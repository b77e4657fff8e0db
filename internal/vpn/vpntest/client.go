// Package vpntest provides in-memory doubles for the VPN transports.
package vpntest

import (
	"context"
	"encoding/json"
	"sync"

	"wirevpn/internal/client/events"
	"wirevpn/internal/vpn"
)

// Client is a vpn.Client with canned answers and call recorders. Events only
// happen when SimulateEvent is called.
type Client struct {
	mu          sync.Mutex
	status      vpn.Status
	version     string
	ready       vpn.ReadyState
	udid        string
	config      json.RawMessage
	err         error
	connects    []vpn.ClientConfig
	disconnects int
	destroyed   bool

	bus *events.Bus
}

var _ vpn.Client = (*Client)(nil)

// New returns a double that reports a stopped, ready control plane.
func New() *Client {
	return &Client{
		status:  vpn.Status{State: vpn.StateStopped},
		version: "0.0.0-test",
		ready:   vpn.Ready("0.0.0-test"),
		udid:    "test-udid",
		config:  json.RawMessage(`{}`),
		bus:     events.NewBus(),
	}
}

// SetStatus sets the answer of GetStatus.
func (c *Client) SetStatus(s vpn.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

// SetState is shorthand for SetStatus with only a state.
func (c *Client) SetState(s vpn.State) {
	c.SetStatus(vpn.Status{State: s})
}

func (c *Client) SetVersion(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = v
}

func (c *Client) SetReady(r vpn.ReadyState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = r
}

func (c *Client) SetUDID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.udid = id
}

func (c *Client) SetConfig(raw json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = raw
}

// SetError makes every request method fail with err. nil clears it.
func (c *Client) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Client) Connect(_ context.Context, cfg vpn.ClientConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, cfg)
	return c.err
}

func (c *Client) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return c.err
}

func (c *Client) GetStatus(context.Context) (vpn.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return vpn.Status{}, c.err
	}
	return c.status, nil
}

func (c *Client) GetVersion(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.version, nil
}

func (c *Client) GetUDID(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.udid, nil
}

func (c *Client) GetConfig(context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.config, nil
}

func (c *Client) CheckReady(context.Context) vpn.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Client) Subscribe(l vpn.Listener) func() {
	return c.bus.Subscribe(l)
}

// Destroy drops all subscribers and marks the double destroyed.
func (c *Client) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
	c.bus.Reset()
}

// SimulateEvent delivers e to the current subscribers before returning.
func (c *Client) SimulateEvent(e vpn.Event) {
	c.bus.Publish(e)
}

// ConnectCalls returns the configs passed to Connect, oldest first.
func (c *Client) ConnectCalls() []vpn.ClientConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]vpn.ClientConfig(nil), c.connects...)
}

// DisconnectCount returns how many times Disconnect was called.
func (c *Client) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *Client) SubscriberCount() int {
	return c.bus.SubscriberCount()
}

func (c *Client) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
