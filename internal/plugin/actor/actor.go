// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package actor serializes registry mutations. Producers send commands from
// any goroutine; a single Run loop applies them in order, one at a time.
package actor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/plughost/internal/plugin"
	"github.com/holomush/plughost/pkg/errutil"
)

// Target is the state the actor owns. Only the Run goroutine calls it.
type Target interface {
	Load(ctx context.Context, dir string) error
	Unload(ctx context.Context, name string) error
	Snapshot() []plugin.Info
}

// Recorder receives per-command measurements.
type Recorder interface {
	CommandDone(kind, source, status string, elapsed time.Duration)
	LoadFailed(code string)
	PluginsLoaded(n int)
	QueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) CommandDone(string, string, string, time.Duration) {}
func (nopRecorder) LoadFailed(string) {}
func (nopRecorder) PluginsLoaded(int) {}
func (nopRecorder) QueueDepth(int) {}

// Hook runs inside the actor goroutine with exclusive access to the target.
type Hook func(ctx context.Context) error

// Actor is the single writer of a Target.
type Actor struct {
	target   Target
	queue    *Queue[Command]
	logger   *slog.Logger
	recorder Recorder
	tracer   trace.Tracer
	prime    Hook
	onStop   Hook

	running  atomic.Bool
	snapshot atomic.Pointer[[]plugin.Info]
}

// Option configures an Actor.
type Option func(*Actor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Actor) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRecorder sets where command metrics go.
func WithRecorder(r Recorder) Option {
	return func(a *Actor) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithTracer overrides the otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(a *Actor) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithPrime sets a hook that runs before the first command, e.g. the
// initial directory scan.
func WithPrime(h Hook) Option {
	return func(a *Actor) {
		a.prime = h
	}
}

// WithOnStop sets a hook that runs after the loop ends, e.g. releasing
// every plugin. It receives a context that is not cancelled.
func WithOnStop(h Hook) Option {
	return func(a *Actor) {
		a.onStop = h
	}
}

// New creates an actor owning target.
func New(target Target, opts ...Option) *Actor {
	a := &Actor{
		target:   target,
		queue:    NewQueue[Command](),
		logger:   slog.Default(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer("plughost/actor"),
	}
	for _, opt := range opts {
		opt(a)
	}
	empty := []plugin.Info{}
	a.snapshot.Store(&empty)
	return a
}

// Send enqueues cmd. It never blocks and fails only after Close.
func (a *Actor) Send(cmd Command) error {
	if err := a.queue.Push(cmd); err != nil {
		return oops.In("actor").With("command_id", cmd.ID.String()).Wrapf(err, "failed to send %s command", cmd.Kind)
	}
	a.recorder.QueueDepth(a.queue.Len())
	return nil
}

// Close stops accepting commands. Run drains what is queued and returns.
func (a *Actor) Close() {
	a.queue.Close()
}

// Pending returns the number of queued commands.
func (a *Actor) Pending() int {
	return a.queue.Len()
}

// Snapshot returns the plugins loaded after the last processed command.
// The slice is shared and must not be modified.
func (a *Actor) Snapshot() []plugin.Info {
	return *a.snapshot.Load()
}

// Run processes commands until ctx is done or the actor is closed and
// drained. Queued commands are abandoned on cancellation; the command in
// progress always finishes.
func (a *Actor) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return oops.In("actor").Errorf("actor already running")
	}
	defer a.running.Store(false)

	if a.prime != nil {
		if err := a.prime(ctx); err != nil {
			errutil.LogError(a.logger, "actor prime failed", err)
		}
	}
	a.publish()

	for ctx.Err() == nil {
		cmd, err := a.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
				errutil.LogError(a.logger, "actor queue failed", err)
			}
			break
		}
		a.recorder.QueueDepth(a.queue.Len())
		a.handle(ctx, cmd)
	}

	if a.onStop != nil {
		if err := a.onStop(context.WithoutCancel(ctx)); err != nil {
			errutil.LogError(a.logger, "actor stop hook failed", err)
		}
	}
	a.publish()
	a.logger.Debug("actor stopped", "abandoned", a.queue.Len())
	return nil
}

func (a *Actor) handle(ctx context.Context, cmd Command) {
	ctx, span := a.tracer.Start(ctx, "plugin."+cmd.Kind.String(),
		trace.WithAttributes(
			attribute.String("command.id", cmd.ID.String()),
			attribute.String("command.source", string(cmd.Source)),
			attribute.String("command.target", cmd.Target()),
		),
	)
	defer span.End()

	start := time.Now()
	var err error
	switch cmd.Kind {
	case KindLoad:
		err = a.target.Load(ctx, cmd.Dir)
	case KindUnload:
		err = a.target.Unload(ctx, cmd.Name)
	default:
		err = oops.In("actor").With("kind", int(cmd.Kind)).Errorf("unknown command kind")
	}
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		errutil.LogError(a.logger, "plugin command failed", err, cmd.LogAttrs()...)
		if cmd.Kind == KindLoad {
			a.recorder.LoadFailed(errutil.Code(err))
		}
	} else {
		a.logger.DebugContext(ctx, "plugin command done",
			append(cmd.LogAttrs(), "elapsed", elapsed)...)
	}
	a.recorder.CommandDone(cmd.Kind.String(), string(cmd.Source), status, elapsed)
	a.publish()
}

func (a *Actor) publish() {
	snap := a.target.Snapshot()
	if snap == nil {
		snap = []plugin.Info{}
	}
	a.snapshot.Store(&snap)
	a.recorder.PluginsLoaded(len(snap))
}
