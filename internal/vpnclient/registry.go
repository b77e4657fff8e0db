// Package vpnclient holds the process-wide VPN transport.
package vpnclient

import (
	"context"
	"errors"
	"sync"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn"
	"wirevpn/internal/vpn/daemon"
	"wirevpn/internal/vpn/native"
)

// ErrNotInitialized is returned by Get before any Create or Init call.
var ErrNotInitialized = errors.New("vpn client not initialized: call Create or Init first")

// HostDetector looks for a native host. It returns nil when there is none.
type HostDetector func(ctx context.Context) native.Plugin

// Registry owns one transport slot.
type Registry struct {
	mu      sync.Mutex
	client  vpn.Client
	factory func() vpn.Client
}

// NewRegistry returns a registry whose default transport is built by factory.
func NewRegistry(factory func() vpn.Client) *Registry {
	return &Registry{factory: factory}
}

// Create installs override when non-nil, replacing any current transport.
// Otherwise it builds the default transport once and returns the same
// instance on every later call.
func (r *Registry) Create(override vpn.Client) vpn.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if override != nil {
		r.client = override
		return override
	}
	if r.client == nil {
		r.client = r.factory()
	}
	return r.client
}

// Init detects a native host once. When one answers the event-driven
// transport is installed, otherwise the default. An existing transport is
// returned without detecting again.
func (r *Registry) Init(ctx context.Context, detect HostDetector) vpn.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client
	}

	if detect != nil {
		if plugin := detect(ctx); plugin != nil {
			logger.Info("Native host detected, using event-driven transport")
			r.client = native.New(plugin)
			return r.client
		}
	}

	logger.Debug("No native host, using polling transport")
	r.client = r.factory()
	return r.client
}

// Get returns the current transport.
func (r *Registry) Get() (vpn.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, ErrNotInitialized
	}
	return r.client, nil
}

// MustGet is Get for callers that treat a missing transport as a bug.
func (r *Registry) MustGet() vpn.Client {
	c, err := r.Get()
	if err != nil {
		panic(err)
	}
	return c
}

// Reset empties the slot. The previous transport is not destroyed.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.client = nil
}

var defaultRegistry = NewRegistry(func() vpn.Client { return daemon.New(daemon.Options{}) })

// Configure replaces the factory of the package-level registry. It must be
// called before Create or Init.
func Configure(factory func() vpn.Client) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.factory = factory
}

// Create, Init, Get, MustGet and Reset operate on the package-level registry.

func Create(override vpn.Client) vpn.Client { return defaultRegistry.Create(override) }

func Init(ctx context.Context, detect HostDetector) vpn.Client {
	return defaultRegistry.Init(ctx, detect)
}

func Get() (vpn.Client, error) { return defaultRegistry.Get() }

func MustGet() vpn.Client { return defaultRegistry.MustGet() }

func Reset() { defaultRegistry.Reset() }
