// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging builds the process logger: JSON or text records tagged
// with service, version and the OpenTelemetry trace of the context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// Options configures New.
type Options struct {
	Service string
	Version string
	// Format is "json" (default) or "text".
	Format string
	// Level is "debug", "info" (default), "warn" or "error".
	Level string
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// traceHandler adds service, version and trace ids to every record. These
// stay top-level under WithGroup: root holds the ungrouped handler and ops
// replays the WithAttrs and WithGroup calls on top of the per-record trace
// attributes.
type traceHandler struct {
	slog.Handler
	root slog.Handler
	ops  []func(slog.Handler) slog.Handler
}

func newTraceHandler(base slog.Handler, service, version string) *traceHandler {
	root := base.WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("version", version),
	})
	return &traceHandler{Handler: root, root: root}
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() && !spanCtx.HasSpanID() {
		//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
		return h.Handler.Handle(ctx, r)
	}

	var attrs []slog.Attr
	if spanCtx.HasTraceID() {
		attrs = append(attrs, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		attrs = append(attrs, slog.String("span_id", spanCtx.SpanID().String()))
	}

	next := h.root.WithAttrs(attrs)
	for _, op := range h.ops {
		next = op(next)
	}
	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return next.Handle(ctx, r)
}

func (h *traceHandler) with(op func(slog.Handler) slog.Handler) *traceHandler {
	return &traceHandler{
		Handler: op(h.Handler),
		root:    h.root,
		ops:     append(slices.Clip(h.ops), op),
	}
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, oops.In("logging").With("level", s).Errorf("unknown log level %q", s)
	}
}

// New creates a logger from opts.
func New(opts Options) (*slog.Logger, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	switch opts.Format {
	case "", "json":
		base = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		base = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, oops.In("logging").With("format", opts.Format).
			Errorf("log format must be 'json' or 'text', got %q", opts.Format)
	}

	return slog.New(newTraceHandler(base, opts.Service, opts.Version)), nil
}

// SetDefault builds a logger with New and installs it as slog's default.
func SetDefault(opts Options) (*slog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
