// Package devdaemon is a local stand-in for the VPN control daemon. It
// serves the /ping and /api/core endpoints over gin and can also be exposed
// to bridge clients as a native plugin.
package devdaemon

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn"
	"wirevpn/pkg/protocol"
)

// ErrMissingServer is returned by Connect when the config has no server.
var ErrMissingServer = errors.New("server is required")

// DefaultConnectDelay is how long the engine stays in connecting.
const DefaultConnectDelay = 1500 * time.Millisecond

// Engine simulates a tunnel: Connect moves stopped to connecting, and after
// ConnectDelay to connected. Disconnect returns to stopped from any state.
type Engine struct {
	version string
	udid    string
	delay   time.Duration

	mu          sync.Mutex
	state       vpn.State
	connectedAt time.Time
	config      *vpn.ClientConfig
	timer       *time.Timer
	gen         uint64

	watchers map[uint64]func(vpn.State)
	nextID   uint64
}

// NewEngine creates an engine reporting version. A non-positive delay uses DefaultConnectDelay.
func NewEngine(version string, delay time.Duration) *Engine {
	if delay <= 0 {
		delay = DefaultConnectDelay
	}
	return &Engine{
		version:  version,
		udid:     uuid.NewString(),
		delay:    delay,
		state:    vpn.StateStopped,
		watchers: make(map[uint64]func(vpn.State)),
	}
}

// Watch registers fn for state transitions and returns a func removing it.
func (e *Engine) Watch(fn func(vpn.State)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.watchers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.watchers, id)
			e.mu.Unlock()
		})
	}
}

// setState must be called with mu held; it returns the watchers to notify.
func (e *Engine) setState(s vpn.State) []func(vpn.State) {
	if e.state == s {
		return nil
	}
	e.state = s
	logger.WithField("state", s).Debug("Dev daemon state changed")

	fns := make([]func(vpn.State), 0, len(e.watchers))
	for _, fn := range e.watchers {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(vpn.State), s vpn.State) {
	for _, fn := range fns {
		fn(s)
	}
}

// Connect starts a simulated connection. Calling it while connecting or
// connected replaces the config and restarts the handshake.
func (e *Engine) Connect(cfg vpn.ClientConfig) error {
	if cfg.Server == "" {
		return ErrMissingServer
	}

	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.config = &cfg
	e.connectedAt = time.Time{}
	fns := e.setState(vpn.StateConnecting)
	e.timer = time.AfterFunc(e.delay, func() { e.finishConnect(gen) })
	e.mu.Unlock()

	notify(fns, vpn.StateConnecting)
	return nil
}

func (e *Engine) finishConnect(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != vpn.StateConnecting {
		e.mu.Unlock()
		return
	}
	e.connectedAt = time.Now()
	e.timer = nil
	fns := e.setState(vpn.StateConnected)
	e.mu.Unlock()

	notify(fns, vpn.StateConnected)
}

// Disconnect stops the tunnel. It is a no-op when already stopped.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	e.connectedAt = time.Time{}
	fns := e.setState(vpn.StateStopped)
	e.mu.Unlock()

	notify(fns, vpn.StateStopped)
}

// Status returns the daemon's status payload.
func (e *Engine) Status() protocol.StatusPayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := protocol.StatusPayload{State: string(e.state), UDID: e.udid}
	if e.config != nil && e.state != vpn.StateStopped {
		p.EndpointURL = e.config.Server
	}
	if e.state == vpn.StateConnected {
		at := e.connectedAt.Unix()
		up := int64(time.Since(e.connectedAt) / time.Second)
		p.ConnectedAt = &at
		p.UptimeSeconds = &up
	}
	return p
}

// State returns the current state.
func (e *Engine) State() vpn.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Version returns the reported daemon version.
func (e *Engine) Version() string { return e.version }

// UDID returns the device id generated at startup.
func (e *Engine) UDID() string { return e.udid }

// Config returns the last config passed to Connect, or JSON null.
func (e *Engine) Config() json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.config == nil {
		return json.RawMessage("null")
	}
	data, err := json.Marshal(e.config)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

// Close stops any pending handshake timer.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}
