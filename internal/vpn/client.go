package vpn

import (
	"context"
	"encoding/json"
	"net/url"
)

// ClientConfig is the connection request handed to Connect. Only Server is required.
type ClientConfig struct {
	Server string `json:"server" yaml:"server"`
	Rule   string `json:"rule,omitempty" yaml:"rule,omitempty"`
	DNS    string `json:"dns,omitempty" yaml:"dns,omitempty"`
	Log    string `json:"log,omitempty" yaml:"log,omitempty"`
	Mode   string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Proxy  string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// WireURL encodes the config as the wire:// URL understood by the native plugin.
func (c ClientConfig) WireURL() string {
	q := url.Values{}
	q.Set("server", c.Server)
	for k, v := range map[string]string{
		"rule":  c.Rule,
		"dns":   c.DNS,
		"log":   c.Log,
		"mode":  c.Mode,
		"proxy": c.Proxy,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return "wire://connect?" + q.Encode()
}

// Client is the contract every transport implements.
type Client interface {
	// Connect asks the control plane to bring the tunnel up.
	Connect(ctx context.Context, cfg ClientConfig) error
	// Disconnect asks the control plane to tear the tunnel down.
	Disconnect(ctx context.Context) error
	// GetStatus returns a fresh status snapshot.
	GetStatus(ctx context.Context) (Status, error)
	// GetVersion returns the control plane version string.
	GetVersion(ctx context.Context) (string, error)
	// GetUDID returns the device identifier.
	GetUDID(ctx context.Context) (string, error)
	// GetConfig returns the control plane's active configuration as raw JSON.
	GetConfig(ctx context.Context) (json.RawMessage, error)
	// CheckReady probes whether the control plane can accept commands.
	CheckReady(ctx context.Context) ReadyState
	// Subscribe registers a listener and returns an idempotent unsubscribe func.
	Subscribe(l Listener) (unsubscribe func())
	// Destroy releases every background resource and drops all listeners.
	Destroy()
}

// UpdateType tells which update channel has something to install.
type UpdateType string

const (
	UpdateNone   UpdateType = "none"
	UpdateNative UpdateType = "native"
	UpdateWeb    UpdateType = "web"
)

// UpdateInfo describes the result of an update check.
type UpdateInfo struct {
	Type    UpdateType `json:"type"`
	Version string     `json:"version,omitempty"`
	URL     string     `json:"url,omitempty"`
}

// UpdateChecker is implemented by transports that can look for app updates.
type UpdateChecker interface {
	CheckUpdate(ctx context.Context) UpdateInfo
}
