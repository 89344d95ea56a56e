/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the playlist controller and
// its control API. A nil *Metrics disables recording everywhere.
type Metrics struct {
	registry *prometheus.Registry

	advancesTotal       prometheus.Counter
	switchCommandsTotal prometheus.Counter
	activePin           prometheus.Gauge
	sourcesCreatedTotal *prometheus.CounterVec
	sourceFailuresTotal prometheus.Counter
	listenerNodes       prometheus.Gauge

	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
}

// New creates and registers the controller metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		advancesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switch_advances_total",
			Help: "Total playlist advances processed by the controller",
		}),
		switchCommandsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switch_source_commands_total",
			Help: "Total switchSource commands issued to the smooth switcher",
		}),
		activePin: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switch_active_pin",
			Help: "Playlist index of the pin currently active on the switcher (-1 when none)",
		}),
		sourcesCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switch_sources_created_total",
			Help: "Input nodes created or bound, by source type",
		}, []string{"type"}),
		sourceFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "switch_source_failures_total",
			Help: "Input node creations rejected by the engine",
		}),
		listenerNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "switch_listener_nodes",
			Help: "Shared listener nodes currently owned by the registry",
		}),
		apiRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switch_api_requests_total",
			Help: "Control API requests by method, endpoint and status",
		}, []string{"method", "endpoint", "status"}),
		apiRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switch_api_request_duration_seconds",
			Help:    "Control API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint", "status"}),
	}

	registry.MustRegister(
		m.advancesTotal,
		m.switchCommandsTotal,
		m.activePin,
		m.sourcesCreatedTotal,
		m.sourceFailuresTotal,
		m.listenerNodes,
		m.apiRequestsTotal,
		m.apiRequestDuration,
	)

	return m
}

// IncAdvances increments the playlist advance counter.
func (m *Metrics) IncAdvances() {
	if m != nil {
		m.advancesTotal.Inc()
	}
}

// IncSwitchCommands increments the switchSource command counter.
func (m *Metrics) IncSwitchCommands() {
	if m != nil {
		m.switchCommandsTotal.Inc()
	}
}

// SetActivePin records the currently active pin index.
func (m *Metrics) SetActivePin(index int) {
	if m != nil {
		m.activePin.Set(float64(index))
	}
}

// IncSourcesCreated counts a created or bound input node by source type.
func (m *Metrics) IncSourcesCreated(sourceType string) {
	if m != nil {
		m.sourcesCreatedTotal.WithLabelValues(sourceType).Inc()
	}
}

// IncSourceFailures counts a rejected input node creation.
func (m *Metrics) IncSourceFailures() {
	if m != nil {
		m.sourceFailuresTotal.Inc()
	}
}

// SetListenerNodes records the number of shared listener nodes.
func (m *Metrics) SetListenerNodes(n int) {
	if m != nil {
		m.listenerNodes.Set(float64(n))
	}
}

// Handler returns an http.Handler serving the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
