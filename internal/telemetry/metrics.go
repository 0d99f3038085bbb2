/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "limitgate"

// Registry holds every limitgate collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

var (
	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP requests by method, route and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_active_connections",
			Help:      "In-flight HTTP requests.",
		},
	)

	// Decision metrics
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Schedule decisions by outcome (accepted, opted_out, malformed, device_not_found, invalid_policy, lookup_failed).",
		},
		[]string{"outcome"},
	)

	JitterSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "jitter_seconds",
			Help:      "Jitter added to the final interval of accepted commands.",
			Buckets:   prometheus.LinearBuckets(60, 60, 10),
		},
	)

	SinkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Best-effort side effects that failed, by stage (token, store, notify, audit).",
		},
		[]string{"stage"},
	)

	PolicyLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "policy_lookup_duration_seconds",
			Help:      "Device policy lookup latency by backend.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	PolicyCacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_cache_results_total",
			Help:      "Policy cache hits and misses.",
		},
		[]string{"result"},
	)

	// Database metrics
	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_query_duration_seconds",
			Help:      "Database operation latency by operation and table.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DatabaseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_errors_total",
			Help:      "Database operation errors by operation and kind.",
		},
		[]string{"operation", "kind"},
	)

	DatabaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections_active",
			Help:      "Open database connections.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		APIRequestDuration,
		APIRequestsTotal,
		APIActiveConnections,
		DecisionsTotal,
		JitterSeconds,
		SinkFailuresTotal,
		PolicyLookupDuration,
		PolicyCacheResults,
		DatabaseQueryDuration,
		DatabaseErrorsTotal,
		DatabaseConnectionsActive,
	)
}

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
