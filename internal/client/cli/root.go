// Package cli implements the wirevpn command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wirevpn/internal/antiblock"
	"wirevpn/internal/client/tui"
)

// Version and DefaultEntry are injected via ldflags by cmd/client.
var (
	Version      = "dev"
	DefaultEntry = antiblock.DefaultEntry
)

var (
	rootCmd    *cobra.Command
	defaultApp *app
)

// Init builds the command tree.
func Init(version, defaultEntry string) {
	if version != "" {
		Version = version
		tui.Version = version
	}
	if defaultEntry != "" {
		DefaultEntry = defaultEntry
	}
	defaultApp = &app{}
	rootCmd = newRootCmd(defaultApp)
}

func Execute() {
	if rootCmd == nil {
		Init("", "")
	}
	err := rootCmd.Execute()
	defaultApp.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "wirevpn",
		Short:         "Control the WireVPN tunnel and account from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.noColor {
				NewOutput(cmd.OutOrStdout(), true)
			}
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.wirevpn/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newStatusCmd(a),
		newReadyCmd(a),
		newConnectCmd(a),
		newDisconnectCmd(a),
		newWatchCmd(a),
		newEntryCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newAPICmd(a),
		newUpdateCmd(a),
	)
	return root
}
