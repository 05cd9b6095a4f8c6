/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API metrics.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "squarewave_api_request_duration_seconds",
		Help:    "Remote API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_api_requests_total",
		Help: "Remote API requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squarewave_api_active_connections",
		Help: "In-flight remote API requests, including open websocket streams.",
	})
)

// Database metrics.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "squarewave_database_query_duration_seconds",
		Help:    "Database operation latency.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_database_errors_total",
		Help: "Failed database operations.",
	}, []string{"operation", "table"})

	DatabaseLookupMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_database_lookup_misses_total",
		Help: "Lookups that found no row.",
	}, []string{"table"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squarewave_database_connections_active",
		Help: "Open database connections.",
	})
)

// Playback metrics.
var (
	PlaybackState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squarewave_playback_state",
		Help: "Current playback state (0 stopped, 1 playing, 2 paused).",
	})

	PlaybackTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_playback_transitions_total",
		Help: "Playback state transitions.",
	}, []string{"from", "to"})

	TrackChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_track_changes_total",
		Help: "Track changes by cause.",
	}, []string{"cause"})

	EngineLoadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_engine_load_failures_total",
		Help: "Engine load commands that failed or timed out.",
	}, []string{"reason"})

	EngineLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "squarewave_engine_load_duration_seconds",
		Help:    "Time taken by the engine to load a track.",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})

	PollerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "squarewave_poller_ticks_total",
		Help: "Playback poller ticks.",
	})

	PersistenceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_persistence_failures_total",
		Help: "Failed persistence writes.",
	}, []string{"operation"})
)

// Remote control and now-playing metrics.
var (
	RemoteCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_remote_commands_total",
		Help: "Remote control commands handled, by source and command.",
	}, []string{"source", "command"})

	NowPlayingSinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "squarewave_nowplaying_sink_errors_total",
		Help: "Now-playing publish failures by sink.",
	}, []string{"sink"})

	NowPlayingSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squarewave_nowplaying_subscribers",
		Help: "Connected now-playing websocket clients.",
	})
)

// Library metrics.
var (
	LibraryTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "squarewave_library_tracks",
		Help: "Tracks found by the most recent library scan.",
	})

	LibraryScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "squarewave_library_scan_duration_seconds",
		Help:    "Library scan duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
