// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package watch turns filesystem events on packaged plugins into registry
// commands. It never touches the registry itself.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/internal/plugin/actor"
	"github.com/holomush/plughost/internal/plugin/archive"
	"github.com/holomush/plughost/pkg/errutil"
)

// Sink accepts commands. *actor.Actor satisfies it.
type Sink interface {
	Send(cmd actor.Command) error
}

// Extractor unpacks an archive and returns its working directory.
type Extractor func(archive string) (string, error)

// Watcher reacts to changes of archives directly under a root directory.
// A successful extraction sends Load for the working directory; a failed
// one sends Unload for the archive's base name.
type Watcher struct {
	root     string
	sink     Sink
	pattern  glob.Glob
	extract  Extractor
	logger   *slog.Logger
	debounce time.Duration
	retries  uint64
	backoff  time.Duration

	ready  chan struct{}
	fire   chan string
	timers map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPattern sets the glob archive basenames must match.
func WithPattern(g glob.Glob) Option {
	return func(w *Watcher) {
		if g != nil {
			w.pattern = g
		}
	}
}

// WithExtractor replaces archive.Extract.
func WithExtractor(e Extractor) Option {
	return func(w *Watcher) {
		if e != nil {
			w.extract = e
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce coalesces events on the same path that arrive within d.
// Zero handles every event immediately.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithRetry retries a failed extraction up to n more times, backoff apart,
// before falling back to Unload.
func WithRetry(n uint64, backoff time.Duration) Option {
	return func(w *Watcher) {
		w.retries = n
		w.backoff = backoff
	}
}

// New creates a watcher for root sending commands to sink.
func New(root string, sink Sink, opts ...Option) *Watcher {
	w := &Watcher{
		root:    root,
		sink:    sink,
		pattern: glob.MustCompile(plugin.DefaultArchivePattern),
		extract: archive.Extract,
		logger:  slog.Default(),
		backoff: 100 * time.Millisecond,
		ready:   make(chan struct{}),
		fire:    make(chan string),
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the root is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done. Failing to watch the root is returned;
// later watcher errors are logged.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.In("watch").Wrapf(err, "failed to create watcher")
	}
	defer func() {
		if err := fsw.Close(); err != nil {
			w.logger.Warn("failed to close watcher", "error", err)
		}
	}()

	if err := fsw.Add(w.root); err != nil {
		return oops.In("watch").With("root", w.root).Wrapf(err, "failed to watch plugins directory")
	}
	close(w.ready)
	w.logger.Info("watching plugins directory", "root", w.root, "debounce", w.debounce)

	done := make(chan struct{})
	defer func() {
		close(done)
		for _, t := range w.timers {
			t.Stop()
		}
		clear(w.timers)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event, done)

		case path := <-w.fire:
			delete(w.timers, path)
			w.process(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "root", w.root, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event, done <-chan struct{}) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || !w.pattern.Match(base) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("archive changed", "path", event.Name, "op", event.Op.String())

	if w.debounce <= 0 {
		w.process(ctx, event.Name)
		return
	}

	path := event.Name
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		select {
		case w.fire <- path:
		case <-done:
		}
	})
}

// process extracts path and sends the resulting command.
func (w *Watcher) process(ctx context.Context, path string) {
	dir, err := w.extractWithRetry(ctx, path)
	if err != nil {
		name := archive.NameOf(path)
		errutil.LogError(w.logger, "archive extraction failed; unloading", err,
			"archive", path,
			"plugin", name)
		w.send(actor.Unload(name, actor.SourceWatch))
		return
	}
	w.send(actor.Load(dir, actor.SourceWatch))
}

func (w *Watcher) extractWithRetry(ctx context.Context, path string) (string, error) {
	if w.retries == 0 {
		return w.extract(path)
	}

	var dir string
	b := retry.WithMaxRetries(w.retries, retry.NewConstant(w.backoff))
	err := retry.Do(ctx, b, func(_ context.Context) error {
		var err error
		dir, err = w.extract(path)
		if err != nil {
			w.logger.Debug("extraction attempt failed", "archive", path, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	//nolint:wrapcheck // extraction errors carry their own code
	return dir, err
}

func (w *Watcher) send(cmd actor.Command) {
	if err := w.sink.Send(cmd); err != nil {
		errutil.LogError(w.logger, "failed to send plugin command", err, cmd.LogAttrs()...)
	}
}
