package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RemoteMetrics records calls to the remote order backend.
type RemoteMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewRemoteMetrics(reg prometheus.Registerer) *RemoteMetrics {
	if reg == nil {
		return &RemoteMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kot_remote_requests_total",
		Help: "Remote order backend requests by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kot_remote_request_duration_seconds",
		Help:    "Remote order backend latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(requests, duration)
	return &RemoteMetrics{requests: requests, duration: duration}
}

// ObserveRequest records a finished remote call.
func (r *RemoteMetrics) ObserveRequest(operation, outcome string, elapsed time.Duration) {
	if r == nil || r.requests == nil {
		return
	}
	op := normalizeLabel(operation)
	r.requests.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	r.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
