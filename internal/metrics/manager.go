// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/autobrr/trview/internal/buildinfo"
	"github.com/autobrr/trview/internal/torrents"
)

// Manager owns the trview collectors on a private registry. It implements
// transmission.Observer and torrents.Recorder.
type Manager struct {
	registry *prometheus.Registry

	RPCRequests      *prometheus.CounterVec
	RPCDuration      *prometheus.HistogramVec
	FetchResults     *prometheus.CounterVec
	TorrentsReturned prometheus.Histogram
	ActiveSessions   prometheus.Gauge
	BuildInfo        *prometheus.GaugeVec
}

func NewMetricsManager() *Manager {
	m := &Manager{
		registry: prometheus.NewRegistry(),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trview_rpc_requests_total",
			Help: "Transmission RPC calls by method and outcome",
		}, []string{"method", "outcome"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trview_rpc_request_duration_seconds",
			Help:    "Time spent on Transmission RPC calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		FetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trview_fetch_results_total",
			Help: "Settled page fetches by final state",
		}, []string{"state"}),
		TorrentsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trview_fetch_torrents",
			Help:    "Number of torrents returned by successful page fetches",
			Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trview_active_page_sessions",
			Help: "Number of open page sessions",
		}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trview_build_info",
			Help: "Build information, always 1",
		}, []string{"version", "commit"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RPCRequests,
		m.RPCDuration,
		m.FetchResults,
		m.TorrentsReturned,
		m.ActiveSessions,
		m.BuildInfo,
	)

	m.BuildInfo.WithLabelValues(buildinfo.Version, buildinfo.Commit).Set(1)

	return m
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) ObserveRPC(method, outcome string, elapsed time.Duration) {
	m.RPCRequests.WithLabelValues(method, outcome).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Manager) FetchSettled(state torrents.State, count int) {
	m.FetchResults.WithLabelValues(string(state)).Inc()
	if state == torrents.StateReady {
		m.TorrentsReturned.Observe(float64(count))
	}
}

func (m *Manager) SessionsActive(n int) {
	m.ActiveSessions.Set(float64(n))
}
