// Package metrics holds the Prometheus collectors for the collection pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CollectionCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homenet_collection_cycles_total",
			Help: "Total number of completed collection cycles",
		},
	)

	CollectionLocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homenet_collection_locations_total",
			Help: "Per-location collection outcomes",
		},
		[]string{"result"},
	)

	CollectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "homenet_collection_cycle_duration_seconds",
			Help:    "Duration of a full collection cycle",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homenet_upstream_requests_total",
			Help: "Outbound requests to the forecast and geocoding services",
		},
		[]string{"endpoint", "outcome"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homenet_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homenet_alerts_generated_total",
			Help: "Alerts produced by the alerts engine",
		},
		[]string{"severity"},
	)

	PrunedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homenet_pruned_rows_total",
			Help: "Rows removed by the retention job",
		},
	)
)
