package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"

	"wirevpn/internal/antiblock"
	"wirevpn/internal/api"
	"wirevpn/internal/auth"
	"wirevpn/internal/client/config"
	"wirevpn/internal/client/logger"
	"wirevpn/internal/sentry"
	"wirevpn/internal/storage"
	"wirevpn/internal/vpn"
	"wirevpn/internal/vpn/daemon"
	"wirevpn/internal/vpn/native"
	"wirevpn/internal/vpn/native/bridge"
	"wirevpn/internal/vpnclient"
)

// app holds the lazily built dependencies shared by all commands.
type app struct {
	configPath string
	logLevel   string
	noColor    bool

	cfg      *config.Config
	store    storage.Store
	resolver *antiblock.Resolver
	session  *api.Session
}

// load reads configuration and applies the ambient settings.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cfg.DefaultEntry == "" {
		cfg.DefaultEntry = DefaultEntry
	}

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if err := logger.SetLevel(level); err != nil {
		return err
	}

	if err := sentry.Init(cfg.SentryDSN, Version, cfg.Mode); err != nil {
		logger.Warn("Sentry disabled: %v", err)
	}

	a.cfg = cfg
	return nil
}

func (a *app) httpClient() *http.Client {
	return &http.Client{Timeout: a.cfg.HTTPTimeout}
}

// transport returns the process transport, detecting a native host first
// when one is configured.
func (a *app) transport(ctx context.Context) vpn.Client {
	cfg := a.cfg
	vpnclient.Configure(func() vpn.Client {
		return daemon.New(daemon.Options{
			Env:          cfg.DaemonEnv(),
			Origin:       cfg.Origin,
			HTTPClient:   a.httpClient(),
			PollInterval: cfg.PollInterval,
		})
	})

	var detect vpnclient.HostDetector
	if cfg.NativeHost != "" {
		detect = func(ctx context.Context) native.Plugin {
			return bridge.Detect(ctx, cfg.NativeHost, bridge.DefaultReconnectConfig())
		}
	}
	return vpnclient.Init(ctx, detect)
}

func (a *app) openStore() (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, err := a.cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(a.cfg.Storage.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) entryResolver() (*antiblock.Resolver, error) {
	if a.resolver != nil {
		return a.resolver, nil
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.resolver = antiblock.New(antiblock.Options{
		Sources:      a.cfg.CDNSources,
		DefaultEntry: a.cfg.DefaultEntry,
		Store:        store,
		HTTPClient:   a.httpClient(),
	})
	return a.resolver, nil
}

// apiSession builds the cloud API session and restores persisted tokens.
func (a *app) apiSession() (*api.Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	resolver, err := a.entryResolver()
	if err != nil {
		return nil, err
	}
	opts := []api.Option{api.WithHTTPClient(a.httpClient())}
	if tokens, err := a.tokenStore(); err != nil {
		logger.Warn("Saved logins disabled: %v", err)
	} else {
		opts = append(opts, api.WithTokenStore(tokens))
	}

	s := api.NewSession(resolver, opts...)
	if _, err := s.Restore(); err != nil {
		logger.Warn("Could not restore saved session: %v", err)
	}
	a.session = s
	return s, nil
}

// tokenStore seals tokens with the configured secret, the environment
// secret, or a generated one kept beside the config file.
func (a *app) tokenStore() (*auth.TokenStore, error) {
	authCfg := auth.Config{AllowInsecureKeys: a.cfg.Mode == daemon.ModeDevelopment}
	switch {
	case a.cfg.TokenSecret != "":
		secret, err := hex.DecodeString(a.cfg.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("token_secret: %w", err)
		}
		authCfg.Secret = secret
	case os.Getenv(auth.SecretEnv) != "":
		// NewTokenStore reads it
	default:
		path, err := config.SecretPath(a.configPath)
		if err == nil {
			authCfg.Secret, err = auth.LoadOrCreateSecret(path)
		}
		if err != nil {
			logger.Warn("Could not load token secret: %v", err)
		}
	}
	return auth.NewTokenStore(a.store, authCfg)
}

// close waits for background work and releases storage. It is safe to call
// after a failed load.
func (a *app) close() {
	if a.resolver != nil {
		a.resolver.Wait()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Debug("Failed to close storage: %v", err)
		}
	}
	if c, err := vpnclient.Get(); err == nil {
		c.Destroy()
		vpnclient.Reset()
	}
	sentry.Flush()
}
