// Package native implements the event-driven transport that forwards to a
// host-provided VPN plugin.
package native

import (
	"context"
	"encoding/json"

	"wirevpn/pkg/protocol"
)

// Handle is returned by AddListener and releases that registration.
type Handle interface {
	Remove() error
}

// Plugin is the surface a native host exposes. Events are delivered as raw
// JSON payloads to listeners registered with AddListener.
type Plugin interface {
	Connect(ctx context.Context, wireURL string) error
	Disconnect(ctx context.Context) error
	GetStatus(ctx context.Context) (protocol.StatusPayload, error)
	GetVersion(ctx context.Context) (string, error)
	GetConfig(ctx context.Context) (json.RawMessage, error)
	CheckReady(ctx context.Context) (protocol.ReadyPayload, error)
	GetUDID(ctx context.Context) (string, error)

	CheckNativeUpdate(ctx context.Context) (protocol.UpdatePayload, error)
	CheckWebUpdate(ctx context.Context) (protocol.UpdatePayload, error)
	DownloadNativeUpdate(ctx context.Context) (path string, err error)
	InstallNativeUpdate(ctx context.Context, path string) error
	ApplyWebUpdate(ctx context.Context) error

	AddListener(event string, fn func(payload json.RawMessage)) (Handle, error)
}

// HandleFunc adapts a func to Handle.
type HandleFunc func() error

func (f HandleFunc) Remove() error { return f() }
