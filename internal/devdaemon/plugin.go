package devdaemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"wirevpn/internal/vpn"
	"wirevpn/internal/vpn/native"
	"wirevpn/pkg/protocol"
)

// ErrNoUpdate is returned by the update actions; the dev daemon never has one.
var ErrNoUpdate = errors.New("no update available")

// Plugin exposes an Engine as a native.Plugin so it can be served over a bridge.Host.
type Plugin struct {
	engine *Engine
}

var _ native.Plugin = (*Plugin)(nil)

// NewPlugin wraps engine.
func NewPlugin(engine *Engine) *Plugin {
	return &Plugin{engine: engine}
}

// nativeState renders a state the way native hosts report it.
func nativeState(s vpn.State) string {
	if s == vpn.StateStopped {
		return "disconnected"
	}
	return string(s)
}

// ParseWireURL decodes a wire://connect URL back into a ClientConfig.
func ParseWireURL(raw string) (vpn.ClientConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return vpn.ClientConfig{}, err
	}
	if u.Scheme != "wire" {
		return vpn.ClientConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	return vpn.ClientConfig{
		Server: q.Get("server"),
		Rule:   q.Get("rule"),
		DNS:    q.Get("dns"),
		Log:    q.Get("log"),
		Mode:   q.Get("mode"),
		Proxy:  q.Get("proxy"),
	}, nil
}

func (p *Plugin) Connect(_ context.Context, wireURL string) error {
	cfg, err := ParseWireURL(wireURL)
	if err != nil {
		return err
	}
	return p.engine.Connect(cfg)
}

func (p *Plugin) Disconnect(context.Context) error {
	p.engine.Disconnect()
	return nil
}

func (p *Plugin) GetStatus(context.Context) (protocol.StatusPayload, error) {
	st := p.engine.Status()
	st.State = nativeState(vpn.State(st.State))
	return st, nil
}

func (p *Plugin) GetVersion(context.Context) (string, error) {
	return p.engine.Version(), nil
}

func (p *Plugin) GetConfig(context.Context) (json.RawMessage, error) {
	return p.engine.Config(), nil
}

func (p *Plugin) CheckReady(context.Context) (protocol.ReadyPayload, error) {
	return protocol.ReadyPayload{Ready: true, Version: p.engine.Version()}, nil
}

func (p *Plugin) GetUDID(context.Context) (string, error) {
	return p.engine.UDID(), nil
}

func (p *Plugin) CheckNativeUpdate(context.Context) (protocol.UpdatePayload, error) {
	return protocol.UpdatePayload{}, nil
}

func (p *Plugin) CheckWebUpdate(context.Context) (protocol.UpdatePayload, error) {
	return protocol.UpdatePayload{}, nil
}

func (p *Plugin) DownloadNativeUpdate(context.Context) (string, error) {
	return "", ErrNoUpdate
}

func (p *Plugin) InstallNativeUpdate(context.Context, string) error {
	return ErrNoUpdate
}

func (p *Plugin) ApplyWebUpdate(context.Context) error {
	return ErrNoUpdate
}

// AddListener supports vpnStateChange; vpnError is accepted but never fires.
func (p *Plugin) AddListener(event string, fn func(json.RawMessage)) (native.Handle, error) {
	switch event {
	case protocol.EventVPNStateChange:
		stop := p.engine.Watch(func(s vpn.State) {
			data, err := json.Marshal(protocol.StateEventPayload{State: nativeState(s)})
			if err != nil {
				return
			}
			fn(data)
		})
		return native.HandleFunc(func() error { stop(); return nil }), nil
	case protocol.EventVPNError:
		return native.HandleFunc(func() error { return nil }), nil
	default:
		return nil, fmt.Errorf("unknown event %q", event)
	}
}
