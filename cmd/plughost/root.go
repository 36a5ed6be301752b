// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// rootFlags holds flags shared by every subcommand.
type rootFlags struct {
	configFile string
	socketPath string
}

// NewRootCmd creates the root command for the plughost CLI.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "plughost",
		Short: "plughost - a hot-reloading plugin host",
		Long: `plughost loads plugins from a directory, runs each one once,
and reloads packaged plugins when their archives change.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/plughost/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.socketPath, "socket", "", "control socket path (default: XDG_RUNTIME_DIR/plughost/plughost.sock)")

	cmd.AddCommand(newRunCmd(flags, nil))
	cmd.AddCommand(newStatusCmd(flags))
	cmd.AddCommand(newPluginsCmd(flags))
	cmd.AddCommand(newLoadCmd(flags))
	cmd.AddCommand(newUnloadCmd(flags))
	cmd.AddCommand(newValidateCmd())

	return cmd
}
