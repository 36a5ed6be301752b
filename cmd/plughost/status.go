// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plughost/internal/control"
	"github.com/holomush/plughost/internal/plugin"
)

// requestTimeout bounds every control socket call made by the CLI.
const requestTimeout = 5 * time.Second

// HostStatus is what the status command reports.
type HostStatus struct {
	Running       bool   `json:"running"`
	Health        string `json:"health,omitempty"`
	PID           int    `json:"pid,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds,omitempty"`
	Plugins       int    `json:"plugins"`
	Pending       int    `json:"pending"`
	Error         string `json:"error,omitempty"`
}

// outputFlags holds the shared --json flag.
type outputFlags struct {
	jsonOutput bool
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	out := &outputFlags{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running plugin host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			status := queryStatus(contextOf(cmd), client)
			if out.jsonOutput {
				return printJSON(cmd, status)
			}
			cmd.Print(formatStatusTable(status))
			return nil
		},
	}
	cmd.Flags().BoolVar(&out.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func newPluginsCmd(flags *rootFlags) *cobra.Command {
	out := &outputFlags{}

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List loaded plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(contextOf(cmd), requestTimeout)
			defer cancel()

			resp, err := client.Plugins(ctx)
			if err != nil {
				return err
			}
			if out.jsonOutput {
				return printJSON(cmd, resp.Plugins)
			}
			cmd.Print(formatPluginsTable(resp.Plugins))
			return nil
		},
	}
	cmd.Flags().BoolVar(&out.jsonOutput, "json", false, "output plugins as JSON")

	return cmd
}

func newLoadCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "load <dir>",
		Short: "Queue a load of an extracted plugin directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return oops.In("cli").With("dir", args[0]).Wrapf(err, "failed to resolve directory")
			}
			return sendCommand(cmd, flags, "load", func(ctx context.Context, c *control.Client) (string, error) {
				return c.Load(ctx, dir)
			})
		},
	}
}

func newUnloadCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unload <name>",
		Short: "Queue an unload of a plugin by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(cmd, flags, "unload", func(ctx context.Context, c *control.Client) (string, error) {
				return c.Unload(ctx, args[0])
			})
		},
	}
}

func sendCommand(cmd *cobra.Command, flags *rootFlags, kind string, send func(context.Context, *control.Client) (string, error)) error {
	client, err := newClient(flags)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(contextOf(cmd), requestTimeout)
	defer cancel()

	id, err := send(ctx, client)
	if err != nil {
		return err
	}
	cmd.Printf("%s queued (command %s)\n", kind, id)
	return nil
}

func newClient(flags *rootFlags) (*control.Client, error) {
	path := flags.socketPath
	if path == "" {
		var err error
		if path, err = control.SocketPath(); err != nil {
			return nil, oops.In("cli").Wrapf(err, "failed to get control socket path")
		}
	}
	return control.NewClient(path), nil
}

// contextOf returns the command's context, which is nil when the command is
// executed without ExecuteContext.
func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// queryStatus asks the host for health and status. Failures are reported in
// the result rather than returned.
func queryStatus(ctx context.Context, client *control.Client) HostStatus {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var status HostStatus
	health, err := client.Health(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Running = true
	status.Health = health.Status

	resp, err := client.Status(ctx)
	if err != nil {
		// Health succeeded; report what we have.
		return status
	}
	status.Running = resp.Running
	status.PID = resp.PID
	status.UptimeSeconds = resp.UptimeSeconds
	status.Plugins = resp.Plugins
	status.Pending = resp.Pending
	return status
}

func formatStatusTable(s HostStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "STATUS\tHEALTH\tPID\tUPTIME\tPLUGINS\tPENDING")
	if s.Running {
		_, _ = fmt.Fprintf(w, "running\t%s\t%d\t%s\t%d\t%d\n",
			s.Health, s.PID, formatUptime(s.UptimeSeconds), s.Plugins, s.Pending)
	} else {
		reason := "not running"
		if s.Error != "" {
			reason = s.Error
		}
		_, _ = fmt.Fprintf(w, "stopped\t-\t-\t-\t-\t%s\n", reason)
	}

	_ = w.Flush()
	return buf.String()
}

func formatPluginsTable(infos []plugin.Info) string {
	if len(infos) == 0 {
		return "no plugins loaded\n"
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tRUNTIME\tVERSION\tHANDLE\tDIR")
	for _, info := range infos {
		ver := info.Version
		if ver == "" {
			ver = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", info.Name, info.Runtime, ver, info.Handle, info.Dir)
	}
	_ = w.Flush()
	return buf.String()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return oops.In("cli").Wrapf(err, "failed to marshal output")
	}
	cmd.Println(string(data))
	return nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
