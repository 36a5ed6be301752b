// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/plughost/internal/control"
	"github.com/holomush/plughost/internal/plugin"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{3599, "59m 59s"},
		{3600, "1h 0m"},
		{90061, "25h 1m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.seconds), "seconds=%d", tt.seconds)
	}
}

func TestFormatStatusTable(t *testing.T) {
	running := formatStatusTable(HostStatus{
		Running: true, Health: "healthy", PID: 42, UptimeSeconds: 61, Plugins: 3, Pending: 1,
	})
	assert.Contains(t, running, "STATUS")
	assert.Regexp(t, `running\s+healthy\s+42\s+1m 1s\s+3\s+1`, running)

	stopped := formatStatusTable(HostStatus{Error: "control socket unreachable"})
	assert.Regexp(t, `stopped\s+-\s+-\s+-\s+-\s+control socket unreachable`, stopped)

	assert.Contains(t, formatStatusTable(HostStatus{}), "not running")
}

func TestFormatPluginsTable(t *testing.T) {
	assert.Equal(t, "no plugins loaded\n", formatPluginsTable(nil))

	out := formatPluginsTable([]plugin.Info{
		{Name: "hello", Runtime: plugin.RuntimeNative, Handle: 1, Dir: "/p/hello", LoadedAt: time.Now()},
		{Name: "greeter", Runtime: plugin.RuntimeLua, Version: "1.2.0", Handle: 1, Dir: "/p/greeter"},
	})
	assert.Regexp(t, `hello\s+native\s+-\s+1\s+/p/hello`, out)
	assert.Regexp(t, `greeter\s+lua\s+1\.2\.0\s+1\s+/p/greeter`, out)
}

func TestQueryStatus_HostNotRunning(t *testing.T) {
	client := control.NewClient(shortSocketPath(t))

	status := queryStatus(context.Background(), client)
	assert.False(t, status.Running)
	assert.NotEmpty(t, status.Error)
}

func TestStatusCommand_HostNotRunning(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--socket", shortSocketPath(t), "status"})

	require.NoError(t, cmd.Execute(), "status reports a stopped host instead of failing")
	assert.Contains(t, out.String(), "stopped")
}

func TestPluginsCommand_HostNotRunning(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--socket", shortSocketPath(t), "plugins"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}
