// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/plughost/internal/config"
	"github.com/holomush/plughost/internal/control"
	"github.com/holomush/plughost/internal/logging"
	"github.com/holomush/plughost/internal/observability"
	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/internal/plugin/actor"
	"github.com/holomush/plughost/internal/plugin/archive"
	pluginlua "github.com/holomush/plughost/internal/plugin/lua"
	"github.com/holomush/plughost/internal/plugin/module"
	"github.com/holomush/plughost/internal/plugin/watch"
	"github.com/holomush/plughost/internal/xdg"
	"github.com/holomush/plughost/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// newRunCmd creates the run subcommand. deps may be nil.
func newRunCmd(flags *rootFlags, deps *RunDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load every plugin and watch for changes",
		Long: `Load every plugin under the plugins directory, then keep running:
changed archives are re-extracted and reloaded, removed or broken archives
are unloaded. Stops on SIGINT, SIGTERM or a shutdown request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runWithDeps(cmd.Context(), cfg, flags.socketPath, cmd, deps)
		},
	}

	pluginsDir, err := xdg.PluginsDir()
	if err != nil {
		pluginsDir = ""
	}
	config.RegisterFlags(cmd.Flags(), pluginsDir)

	return cmd
}

// loadConfig reads --config, or the XDG config file when it exists.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	path, optional := flags.configFile, false
	if path == "" {
		if p, err := xdg.ConfigFile(); err == nil {
			path, optional = p, true
		}
	}
	return config.Load(path, optional, cmd.Flags())
}

// runWithDeps runs the host until a signal, a shutdown request or ctx ends.
// If deps is nil, default implementations are used.
func runWithDeps(ctx context.Context, cfg *config.Config, socketPath string, cmd *cobra.Command, deps *RunDeps) error {
	if deps == nil {
		deps = &RunDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.ControlServerFactory == nil {
		deps.ControlServerFactory = func(socketPath string, host control.Host, shutdownFunc control.ShutdownFunc) ControlServer {
			return control.NewServer(socketPath, host, shutdownFunc)
		}
	}
	if deps.SocketPathGetter == nil {
		deps.SocketPathGetter = control.SocketPath
	}
	if deps.NativeOpener == nil {
		deps.NativeOpener = module.Native{}
	}
	if deps.LogWriter == nil {
		deps.LogWriter = os.Stderr
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.SetDefault(logging.Options{
		Service: "plughost",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  deps.LogWriter,
	})
	if err != nil {
		return oops.In("run").Wrapf(err, "failed to set up logging")
	}

	if err := xdg.EnsureDir(cfg.PluginsDir); err != nil {
		return oops.In("run").With("plugins_dir", cfg.PluginsDir).Wrapf(err, "failed to create plugins directory")
	}
	if _, err := os.ReadDir(cfg.PluginsDir); err != nil {
		return oops.In("run").With("plugins_dir", cfg.PluginsDir).Wrapf(err, "plugins directory is not readable")
	}

	logger.Info("starting plugin host",
		"plugins_dir", cfg.PluginsDir,
		"watch", cfg.Watch,
		"duplicate", cfg.Duplicate,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var primed atomic.Bool
	var recorder actor.Recorder

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, primed.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.In("run").With("addr", cfg.MetricsAddr).Wrapf(err, "failed to start observability server")
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		if m := obsServer.Metrics(); m != nil {
			recorder = m
		}
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	registry := plugin.NewRegistry(cfg.PluginsDir,
		plugin.WithLogger(logger),
		plugin.WithOpener(plugin.RuntimeNative, deps.NativeOpener),
		plugin.WithOpener(plugin.RuntimeLua, pluginlua.NewOpener(logger)),
		plugin.WithDuplicatePolicy(cfg.DuplicatePolicy()),
		plugin.WithArchivePattern(cfg.ArchiveGlob()),
	)

	actorOpts := []actor.Option{
		actor.WithLogger(logger),
		actor.WithPrime(func(ctx context.Context) error {
			defer primed.Store(true)
			rep, err := registry.LoadAll(ctx, cfg.PluginsDir)
			if err != nil {
				return err
			}
			logger.Info("initial scan complete", "loaded", len(rep.Loaded), "failed", rep.Failed())
			return nil
		}),
	}
	if recorder != nil {
		actorOpts = append(actorOpts, actor.WithRecorder(recorder))
	}
	if cfg.UnloadOnExit {
		actorOpts = append(actorOpts, actor.WithOnStop(registry.Close))
	}
	host := actor.New(registry, actorOpts...)

	var watchErrChan chan error
	if cfg.Watch {
		watcher := watch.New(cfg.PluginsDir, host,
			watch.WithLogger(logger),
			watch.WithPattern(cfg.ArchiveGlob()),
			watch.WithExtractor(archive.Extract),
			watch.WithDebounce(cfg.Debounce),
			watch.WithRetry(cfg.ExtractRetries, cfg.RetryBackoff),
		)
		watchErrChan = make(chan error, 1)
		go func() { watchErrChan <- watcher.Run(ctx) }()

		select {
		case <-watcher.Ready():
			logger.Info("watching plugins directory", "dir", cfg.PluginsDir, "pattern", cfg.ArchivePattern)
		case err := <-watchErrChan:
			stopObservability(obsServer, logger)
			return oops.In("run").With("plugins_dir", cfg.PluginsDir).Wrapf(err, "failed to watch plugins directory")
		}
	}

	actorDone := make(chan error, 1)
	go func() { actorDone <- host.Run(ctx) }()

	var controlServer ControlServer
	if cfg.Control {
		if socketPath == "" {
			socketPath, err = deps.SocketPathGetter()
			if err != nil {
				cancel()
				<-actorDone
				stopObservability(obsServer, logger)
				return oops.In("run").Wrapf(err, "failed to get control socket path")
			}
		}
		controlServer = deps.ControlServerFactory(socketPath, host, func() { cancel() })
		if err := controlServer.Start(); err != nil {
			cancel()
			<-actorDone
			stopObservability(obsServer, logger)
			return oops.In("run").With("socket", socketPath).Wrapf(err, "failed to start control socket")
		}
		logger.Info("control socket started", "path", socketPath)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Plugin host started")

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	case err := <-watchErrChan:
		if err != nil {
			runErr = oops.In("run").Wrapf(err, "watcher stopped")
		}
		watchErrChan = nil
	}

	logger.Info("shutting down...")
	cancel()

	if watchErrChan != nil {
		if err := <-watchErrChan; err != nil {
			errutil.LogError(logger, "watcher stopped with error", err)
		}
	}
	if err := <-actorDone; err != nil {
		errutil.LogError(logger, "actor stopped with error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if controlServer != nil {
		if err := controlServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping control socket", "error", err)
		}
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string) {
	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			slog.Error("server error, triggering shutdown", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

func stopObservability(s ObservabilityServer, logger *slog.Logger) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}
