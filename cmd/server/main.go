// Command wirevpn-devd runs the development control daemon and, optionally,
// a native bridge host serving the same engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wirevpn/internal/client/logger"
	"wirevpn/internal/devdaemon"
	"wirevpn/internal/sentry"
	"wirevpn/internal/vpn/daemon"
	"wirevpn/internal/vpn/native/bridge"
)

const shutdownTimeout = 30 * time.Second

// Version is set via ldflags.
var Version = "dev"

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := logger.SetLevel(getenv("WIREVPN_LOG_LEVEL", "info")); err != nil {
		logger.Warn("%v", err)
	}
	if err := sentry.Init(os.Getenv("WIREVPN_SENTRY_DSN"), Version, "development"); err != nil {
		logger.Warn("Sentry disabled: %v", err)
	}
	defer sentry.Flush()

	delay := devdaemon.DefaultConnectDelay
	if v := os.Getenv("WIREVPN_CONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("Invalid WIREVPN_CONNECT_DELAY: %v", err)
			os.Exit(1)
		}
		delay = d
	}
	engine := devdaemon.NewEngine(Version, delay)

	// Loopback only: this daemon has no authentication.
	httpAddr := getenv("WIREVPN_DAEMON_ADDR", "127.0.0.1:"+strconv.Itoa(daemon.DefaultPort))
	srv := devdaemon.NewServer(httpAddr, engine)
	if err := srv.Listen(); err != nil {
		logger.Error("Failed to listen on %s: %v", httpAddr, err)
		os.Exit(1)
	}

	serverErrors := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrors <- err
		}
	}()

	var host *bridge.Host
	if addr := os.Getenv("WIREVPN_NATIVE_HOST"); addr != "" {
		host = bridge.NewHost(addr, devdaemon.NewPlugin(engine))
		if err := host.Listen(); err != nil {
			logger.Error("Failed to listen on %s: %v", addr, err)
			os.Exit(1)
		}
		go func() {
			if err := host.Start(); err != nil {
				serverErrors <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErrors:
		sentry.CaptureError(err, "Server error, initiating shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		sentry.CaptureErrorf(err, "Dev daemon shutdown error")
	}
	if host != nil {
		if err := host.Shutdown(ctx); err != nil {
			logger.Error("Bridge host shutdown error: %v", err)
		}
	}
	logger.Info("Shutdown complete")
}
