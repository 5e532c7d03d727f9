package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "route_sync_duration_seconds",
		Help:    "Duration of route reconciliation passes in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SyncDrift counts route changes made by reconciliation, by kind
	// (created, updated, disabled).
	SyncDrift = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "route_sync_drift_total",
		Help: "Route store changes made by reconciliation",
	}, []string{"kind"})

	RoutesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "routes_published_total",
		Help: "Route publication attempts",
	}, []string{"result"})

	RoutesUnpublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "routes_unpublished_total",
		Help: "Routes torn down",
	})
)
