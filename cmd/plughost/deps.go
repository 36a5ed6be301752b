// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"

	"github.com/holomush/plughost/internal/control"
	"github.com/holomush/plughost/internal/observability"
	"github.com/holomush/plughost/internal/plugin/module"
)

// RunDeps contains injectable dependencies for the run command.
// All fields with nil values will use their default implementations.
type RunDeps struct {
	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ControlServerFactory creates the control socket server.
	// Default: control.NewServer
	ControlServerFactory func(socketPath string, host control.Host, shutdownFunc control.ShutdownFunc) ControlServer

	// SocketPathGetter returns the control socket path when --socket is unset.
	// Default: control.SocketPath
	SocketPathGetter func() (string, error)

	// NativeOpener opens native modules.
	// Default: module.Native
	NativeOpener module.Opener

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ControlServer interface wraps the methods used from control.Server.
type ControlServer interface {
	Start() error
	Stop(ctx context.Context) error
}
