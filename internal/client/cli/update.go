package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wirevpn/internal/client/updater"
	"wirevpn/internal/vpn"
)

// updateApplier is implemented by transports that can install their own updates.
type updateApplier interface {
	ApplyUpdate(ctx context.Context, info vpn.UpdateInfo) error
}

// updateChecker prefers the transport's own tiers and falls back to GitHub releases.
func updateChecker(client vpn.Client) func(context.Context) vpn.UpdateInfo {
	if uc, ok := client.(vpn.UpdateChecker); ok {
		return uc.CheckUpdate
	}
	return func(ctx context.Context) vpn.UpdateInfo {
		return updater.Resolve(ctx, updater.GitHubTier(Version))
	}
}

func applyUpdate(ctx context.Context, client vpn.Client, info vpn.UpdateInfo, out *Output) error {
	if ua, ok := client.(updateApplier); ok {
		return ua.ApplyUpdate(ctx, info)
	}
	if info.Type != vpn.UpdateNative {
		return fmt.Errorf("cannot apply %s update from the command line", info.Type)
	}

	release, err := updater.CheckForUpdate(ctx, Version)
	if err != nil {
		return err
	}
	if !release.Available {
		return errors.New("update is no longer available")
	}
	out.Info("Downloading %s", release.AssetName)
	path, err := updater.Download(ctx, release)
	if err != nil {
		return err
	}
	result, err := updater.Install(path)
	if err != nil {
		return err
	}
	out.Plain("%s", result.Message)
	return nil
}

func newUpdateCmd(a *app) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for and optionally apply an update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := NewOutput(cmd.OutOrStdout(), false)

			client := a.transport(ctx)
			info := updateChecker(client)(ctx)
			if info.Type == vpn.UpdateNone {
				out.Success("wirevpn %s is up to date", Version)
				return nil
			}

			out.Info("%s update %s available", info.Type, info.Version)
			if !apply {
				out.Plain("Run 'wirevpn update --apply' to install it.")
				return nil
			}
			if err := applyUpdate(ctx, client, info, out); err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			out.Success("Update applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "download and install the update")
	return cmd
}
