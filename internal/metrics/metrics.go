// Package metrics registers the Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_events_ingested_total",
			Help: "Total number of events appended from the stream",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_events_dropped_total",
			Help: "Total number of stream messages dropped as unparseable",
		},
	)

	BulkFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_bulk_fetches_total",
			Help: "Total number of bulk event fetches by outcome",
		},
		[]string{"status"},
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_stream_reconnects_total",
			Help: "Total number of scheduled stream reconnections",
		},
	)

	// Store metrics
	StoreEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_store_events",
			Help: "Current number of events held in memory",
		},
	)

	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_stream_connected",
			Help: "Whether the event stream is currently connected (1) or not (0)",
		},
	)
)
