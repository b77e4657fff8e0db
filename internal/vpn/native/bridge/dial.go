package bridge

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/yamux"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/vpn/native"
)

// ReconnectConfig holds dial retry parameters
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int // must be > 0; the bridge never retries forever
	DialTimeout  time.Duration
}

// DefaultReconnectConfig returns the defaults used by the CLI
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  4,
		DialTimeout:  2 * time.Second,
	}
}

// Dial connects to a Host at addr, retrying with exponential backoff up to
// cfg.MaxAttempts times.
func Dial(ctx context.Context, addr string, cfg *ReconnectConfig) (*Plugin, error) {
	if cfg == nil {
		cfg = DefaultReconnectConfig()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			logger.Debug("Retrying native host in %v (attempt %d/%d)...", delay, attempt, maxAttempts)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		plugin, err := dialOnce(ctx, addr, cfg.DialTimeout)
		if err == nil {
			return plugin, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logger.Debug("Native host dial failed: %v", err)
	}

	return nil, fmt.Errorf("native host unreachable after %d attempts: %w", maxAttempts, lastErr)
}

func dialOnce(ctx context.Context, addr string, timeout time.Duration) (*Plugin, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	session, err := yamux.Client(conn, sessionConfig())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start yamux: %w", err)
	}
	return NewPlugin(session), nil
}

// Detect dials addr and confirms a host answers. It returns nil when no host
// is present.
func Detect(ctx context.Context, addr string, cfg *ReconnectConfig) native.Plugin {
	if addr == "" {
		return nil
	}
	plugin, err := Dial(ctx, addr, cfg)
	if err != nil {
		logger.Debug("No native host at %s: %v", addr, err)
		return nil
	}

	if _, err := plugin.GetVersion(ctx); err != nil {
		logger.Debug("Native host at %s did not answer: %v", addr, err)
		plugin.Close()
		return nil
	}
	return plugin
}
