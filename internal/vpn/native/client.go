package native

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"wirevpn/internal/client/events"
	"wirevpn/internal/client/logger"
	"wirevpn/internal/client/updater"
	"wirevpn/internal/vpn"
	"wirevpn/pkg/protocol"
)

// Client forwards every operation to a Plugin. Plugin listeners are
// registered lazily on the first subscriber and released with the last.
type Client struct {
	plugin Plugin
	bus    *events.Bus

	mu          sync.Mutex
	handles     []Handle
	initialized bool
}

var (
	_ vpn.Client        = (*Client)(nil)
	_ vpn.UpdateChecker = (*Client)(nil)
)

// New wraps plugin in a transport.
func New(plugin Plugin) *Client {
	c := &Client{
		plugin: plugin,
		bus:    events.NewBus(),
	}
	c.bus.OnActive(c.attach)
	c.bus.OnIdle(c.detach)
	return c
}

// attach registers the plugin listeners once.
func (c *Client) attach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return
	}

	stateHandle, err := c.plugin.AddListener(protocol.EventVPNStateChange, c.onStateChange)
	if err != nil {
		logger.Warn("Failed to register %s listener: %v", protocol.EventVPNStateChange, err)
		return
	}
	errorHandle, err := c.plugin.AddListener(protocol.EventVPNError, c.onError)
	if err != nil {
		logger.Warn("Failed to register %s listener: %v", protocol.EventVPNError, err)
		if rmErr := stateHandle.Remove(); rmErr != nil {
			logger.Debug("Failed to release listener: %v", rmErr)
		}
		return
	}

	c.handles = []Handle{stateHandle, errorHandle}
	c.initialized = true
}

// detach releases every plugin handle and clears the initialized flag.
func (c *Client) detach() {
	c.mu.Lock()
	handles := c.handles
	c.handles = nil
	c.initialized = false
	c.mu.Unlock()

	for _, h := range handles {
		if err := h.Remove(); err != nil {
			logger.Debug("Failed to release plugin listener: %v", err)
		}
	}
}

func (c *Client) onStateChange(payload json.RawMessage) {
	var ev protocol.StateEventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Debug("Malformed %s payload: %v", protocol.EventVPNStateChange, err)
	}
	c.bus.PublishState(vpn.NormalizeState(ev.State))
}

func (c *Client) onError(payload json.RawMessage) {
	var ev protocol.ErrorEventPayload
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Message == "" {
		ev.Message = "native plugin error"
	}
	c.bus.Publish(vpn.ErrorEvent(ev.Message))
}

// Initialized reports whether plugin listeners are currently registered.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Connect hands the config to the plugin as a wire:// URL.
func (c *Client) Connect(ctx context.Context, cfg vpn.ClientConfig) error {
	return c.plugin.Connect(ctx, cfg.WireURL())
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.plugin.Disconnect(ctx)
}

// GetStatus returns the plugin status with the state normalized.
func (c *Client) GetStatus(ctx context.Context) (vpn.Status, error) {
	payload, err := c.plugin.GetStatus(ctx)
	if err != nil {
		return vpn.Status{}, err
	}
	return vpn.StatusFromPayload(payload), nil
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	return c.plugin.GetVersion(ctx)
}

func (c *Client) GetUDID(ctx context.Context) (string, error) {
	return c.plugin.GetUDID(ctx)
}

func (c *Client) GetConfig(ctx context.Context) (json.RawMessage, error) {
	return c.plugin.GetConfig(ctx)
}

// CheckReady asks the plugin. A plugin that cannot answer is treated as not installed.
func (c *Client) CheckReady(ctx context.Context) vpn.ReadyState {
	rs, err := c.plugin.CheckReady(ctx)
	if err != nil {
		logger.Debug("Native readiness check failed: %v", err)
		return vpn.NotReady(vpn.ReasonNotInstalled)
	}
	if !rs.Ready {
		return vpn.NotReady(vpn.ParseReason(rs.Reason))
	}
	return vpn.Ready(rs.Version)
}

// Subscribe registers l. The first subscriber registers the plugin listeners.
func (c *Client) Subscribe(l vpn.Listener) func() {
	return c.bus.Subscribe(l)
}

// Destroy releases the plugin listeners and drops every subscriber.
func (c *Client) Destroy() {
	c.detach()
	c.bus.Reset()
}

// CheckUpdate consults the native tier, then the web tier.
func (c *Client) CheckUpdate(ctx context.Context) vpn.UpdateInfo {
	return updater.Resolve(ctx,
		updater.Tier{Type: vpn.UpdateNative, Check: c.plugin.CheckNativeUpdate},
		updater.Tier{Type: vpn.UpdateWeb, Check: c.plugin.CheckWebUpdate},
	)
}

// ApplyUpdate installs the update described by info.
func (c *Client) ApplyUpdate(ctx context.Context, info vpn.UpdateInfo) error {
	switch info.Type {
	case vpn.UpdateNone:
		return nil
	case vpn.UpdateNative:
		path, err := c.plugin.DownloadNativeUpdate(ctx)
		if err != nil {
			return fmt.Errorf("failed to download native update: %w", err)
		}
		if err := c.plugin.InstallNativeUpdate(ctx, path); err != nil {
			return fmt.Errorf("failed to install native update: %w", err)
		}
		return nil
	case vpn.UpdateWeb:
		if err := c.plugin.ApplyWebUpdate(ctx); err != nil {
			return fmt.Errorf("failed to apply web update: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown update type %q", info.Type)
	}
}
