// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the plugin host's Prometheus metrics. It satisfies the
// actor's Recorder interface.
type Metrics struct {
	Loaded       prometheus.Gauge
	Commands     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	LoadFailures *prometheus.CounterVec
	Queue        prometheus.Gauge
}

// NewMetrics creates and registers the plugin host metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plughost_plugins_loaded",
			Help: "Number of plugins currently loaded",
		}),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plughost_commands_total",
				Help: "Total number of registry commands by kind, source and status",
			},
			[]string{"kind", "source", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plughost_command_duration_seconds",
				Help:    "Time spent applying a registry command",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"kind"},
		),
		LoadFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plughost_load_failures_total",
				Help: "Total number of failed plugin loads by error code",
			},
			[]string{"code"},
		),
		Queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plughost_queue_depth",
			Help: "Commands waiting for the actor",
		}),
	}

	reg.MustRegister(
		m.Loaded,
		m.Commands,
		m.Duration,
		m.LoadFailures,
		m.Queue,
	)
	return m
}

// CommandDone counts a finished command.
func (m *Metrics) CommandDone(kind, source, status string, elapsed time.Duration) {
	m.Commands.WithLabelValues(kind, source, status).Inc()
	m.Duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// LoadFailed counts a failed load. An empty code is recorded as "unknown".
func (m *Metrics) LoadFailed(code string) {
	if code == "" {
		code = "unknown"
	}
	m.LoadFailures.WithLabelValues(code).Inc()
}

// PluginsLoaded sets the loaded plugin gauge.
func (m *Metrics) PluginsLoaded(n int) {
	m.Loaded.Set(float64(n))
}

// QueueDepth sets the queue depth gauge.
func (m *Metrics) QueueDepth(n int) {
	m.Queue.Set(float64(n))
}
