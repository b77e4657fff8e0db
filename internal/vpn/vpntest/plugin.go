package vpntest

import (
	"context"
	"encoding/json"
	"sync"

	"wirevpn/internal/vpn/native"
	"wirevpn/pkg/protocol"
)

type pluginListener struct {
	id    int
	event string
	fn    func(json.RawMessage)
}

// Plugin is an in-memory native.Plugin. Fields may be set before use; Emit
// pushes an event to registered listeners.
type Plugin struct {
	mu sync.Mutex

	Status      protocol.StatusPayload
	Version     string
	Ready       protocol.ReadyPayload
	ReadyErr    error
	UDID        string
	Config      json.RawMessage
	NativeCheck protocol.UpdatePayload
	NativeErr   error
	WebCheck    protocol.UpdatePayload
	WebErr      error
	AddErr      error

	listeners []pluginListener
	nextID    int
	added     int
	removed   int
	calls     []string
	wireURLs  []string
	installed []string
}

var _ native.Plugin = (*Plugin)(nil)

// NewPlugin returns a plugin reporting a disconnected, ready host.
func NewPlugin() *Plugin {
	return &Plugin{
		Status:  protocol.StatusPayload{State: "disconnected"},
		Version: "0.0.0-test",
		Ready:   protocol.ReadyPayload{Ready: true, Version: "0.0.0-test"},
		UDID:    "plugin-udid",
		Config:  json.RawMessage(`{}`),
	}
}

func (p *Plugin) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *Plugin) Connect(_ context.Context, wireURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("connect")
	p.wireURLs = append(p.wireURLs, wireURL)
	return nil
}

func (p *Plugin) Disconnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("disconnect")
	return nil
}

func (p *Plugin) GetStatus(context.Context) (protocol.StatusPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("getStatus")
	return p.Status, nil
}

func (p *Plugin) GetVersion(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("getVersion")
	return p.Version, nil
}

func (p *Plugin) GetConfig(context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("getConfig")
	return p.Config, nil
}

func (p *Plugin) CheckReady(context.Context) (protocol.ReadyPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("checkReady")
	return p.Ready, p.ReadyErr
}

func (p *Plugin) GetUDID(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("getUDID")
	return p.UDID, nil
}

func (p *Plugin) CheckNativeUpdate(context.Context) (protocol.UpdatePayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("checkNativeUpdate")
	return p.NativeCheck, p.NativeErr
}

func (p *Plugin) CheckWebUpdate(context.Context) (protocol.UpdatePayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("checkWebUpdate")
	return p.WebCheck, p.WebErr
}

func (p *Plugin) DownloadNativeUpdate(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("downloadNativeUpdate")
	return "/tmp/wirevpn-update.pkg", nil
}

func (p *Plugin) InstallNativeUpdate(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("installNativeUpdate")
	p.installed = append(p.installed, path)
	return nil
}

func (p *Plugin) ApplyWebUpdate(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("applyWebUpdate")
	return nil
}

func (p *Plugin) AddListener(event string, fn func(json.RawMessage)) (native.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AddErr != nil {
		return nil, p.AddErr
	}
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, pluginListener{id: id, event: event, fn: fn})
	p.added++

	var once sync.Once
	return native.HandleFunc(func() error {
		once.Do(func() { p.remove(id) })
		return nil
	}), nil
}

func (p *Plugin) remove(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.listeners {
		if l.id == id {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			p.removed++
			return
		}
	}
}

// Emit marshals payload and delivers it to every listener of event.
func (p *Plugin) Emit(event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	p.mu.Lock()
	var targets []func(json.RawMessage)
	for _, l := range p.listeners {
		if l.event == event {
			targets = append(targets, l.fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range targets {
		fn(raw)
	}
}

// EmitState emits a vpnStateChange event with the raw state name.
func (p *Plugin) EmitState(state string) {
	p.Emit(protocol.EventVPNStateChange, protocol.StateEventPayload{State: state})
}

// EmitError emits a vpnError event.
func (p *Plugin) EmitError(message string) {
	p.Emit(protocol.EventVPNError, protocol.ErrorEventPayload{Message: message})
}

// Registrations returns how many listeners were added and removed so far.
func (p *Plugin) Registrations() (added, removed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.added, p.removed
}

// ActiveListeners returns the number of registered listeners.
func (p *Plugin) ActiveListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Calls returns the plugin methods invoked so far, in order.
func (p *Plugin) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// WireURLs returns the URLs passed to Connect.
func (p *Plugin) WireURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.wireURLs...)
}

// Installed returns the paths passed to InstallNativeUpdate.
func (p *Plugin) Installed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.installed...)
}
