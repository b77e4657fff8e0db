package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wirevpn/internal/client/config"
	"wirevpn/internal/client/events"
	"wirevpn/internal/client/logger"
	"wirevpn/internal/client/tui"
	"wirevpn/internal/vpn"
)

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the tunnel status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := NewOutput(cmd.OutOrStdout(), false)

			st, err := a.transport(ctx).GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if asJSON {
				return out.JSON(st)
			}

			out.Field("State", stateText(st.State))
			if st.EndpointURL != "" {
				out.Field("Endpoint", colorInfo(st.EndpointURL))
			}
			if st.ConnectedAt != nil {
				out.Field("Connected At", st.ConnectedAt.Format(time.RFC3339))
			}
			if st.UptimeSeconds != nil {
				out.Field("Uptime", st.Uptime().String())
			}
			if st.Error != "" {
				out.Field("Error", colorError(st.Error))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// ErrNotReady is returned by `ready` so the exit code reflects readiness.
var ErrNotReady = errors.New("control plane not ready")

func newReadyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check that the control plane can accept commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := NewOutput(cmd.OutOrStdout(), false)

			r := a.transport(ctx).CheckReady(ctx)
			if !r.Ready {
				out.Warning("Not ready: %s", r.Reason)
				return fmt.Errorf("%w: %s", ErrNotReady, r.Reason)
			}
			out.Success("Ready (version %s)", r.Version)
			return nil
		},
	}
}

func newConnectCmd(a *app) *cobra.Command {
	var (
		flagCfg vpn.ClientConfig
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "connect [server]",
		Short: "Bring the tunnel up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := NewOutput(cmd.OutOrStdout(), false)

			cfg := mergeConnectConfig(a.cfg.Connect, flagCfg)
			if len(args) == 1 {
				cfg.Server = args[0]
			}
			if cfg.Server == "" {
				return errors.New("no server given and none configured under connect.server")
			}

			client := a.transport(ctx)

			// Subscribe before connecting so no transition is missed.
			var (
				ch     <-chan vpn.Event
				cancel = func() {}
			)
			if wait > 0 {
				ch, cancel = events.Channel(client, 16)
			}
			defer cancel()

			if err := client.Connect(ctx, cfg); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			out.Info("Connecting to %s", cfg.Server)

			if wait <= 0 {
				return nil
			}
			if err := waitForState(ctx, ch, vpn.StateConnected, wait); err != nil {
				return err
			}
			out.Success("Connected")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&flagCfg.Rule, "rule", "", "routing rule")
	f.StringVar(&flagCfg.DNS, "dns", "", "DNS server")
	f.StringVar(&flagCfg.Log, "log", "", "tunnel log level")
	f.StringVar(&flagCfg.Mode, "mode", "", "routing mode")
	f.StringVar(&flagCfg.Proxy, "proxy", "", "upstream proxy")
	f.DurationVar(&wait, "wait", 0, "wait up to this long for the tunnel to connect")
	return cmd
}

// mergeConnectConfig overlays non-empty flag values on the configured defaults.
func mergeConnectConfig(base, flags vpn.ClientConfig) vpn.ClientConfig {
	out := base
	if flags.Server != "" {
		out.Server = flags.Server
	}
	if flags.Rule != "" {
		out.Rule = flags.Rule
	}
	if flags.DNS != "" {
		out.DNS = flags.DNS
	}
	if flags.Log != "" {
		out.Log = flags.Log
	}
	if flags.Mode != "" {
		out.Mode = flags.Mode
	}
	if flags.Proxy != "" {
		out.Proxy = flags.Proxy
	}
	return out
}

// waitForState blocks until a state_change to want arrives. An error event
// is reported but does not end the wait; the state is authoritative.
func waitForState(ctx context.Context, ch <-chan vpn.Event, want vpn.State, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s", want)
		case ev, ok := <-ch:
			if !ok {
				return fmt.Errorf("event stream closed before %s", want)
			}
			switch ev.Type {
			case vpn.EventStateChange:
				if ev.State == want {
					return nil
				}
			case vpn.EventError:
				logger.Warn("Transport error while waiting: %s", ev.Message)
			}
		}
	}
}

func newDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Tear the tunnel down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.transport(ctx).Disconnect(ctx); err != nil {
				return fmt.Errorf("failed to disconnect: %w", err)
			}
			NewOutput(cmd.OutOrStdout(), false).Success("Disconnected")
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the live dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lock, err := config.AcquireLock("watch")
			if err != nil {
				return err
			}
			defer lock.Release()

			client := a.transport(ctx)

			// Logs would corrupt the alternate screen.
			logger.SetSink(func(level, message string) {})
			logger.SetTUIMode(true)
			defer logger.SetTUIMode(false)

			return tui.Run(tui.Options{
				Client:      client,
				Connect:     a.cfg.Connect,
				CheckUpdate: updateChecker(client),
			})
		},
	}
}
