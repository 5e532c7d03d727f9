package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream API call outcomes, shared by the tunnel and identity provider clients.
var (
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Total number of upstream API requests",
	}, []string{"provider", "op", "result"})

	UpstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Upstream API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "op"})
)

// ObserveUpstream records one upstream request.
func ObserveUpstream(provider, op string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(provider, op, result).Inc()
	UpstreamRequestDuration.WithLabelValues(provider, op).Observe(seconds)
}
