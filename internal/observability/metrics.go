// Package observability provides metrics and tracing for the signing pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntakesTotal counts document intakes by kind (upload/template) and outcome.
	IntakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firma_intakes_total",
		Help: "Total number of document intake requests by kind and outcome",
	}, []string{"kind", "outcome"})

	// SignaturesTotal counts signature submissions by outcome.
	SignaturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firma_signatures_total",
		Help: "Total number of signature submissions by outcome",
	}, []string{"outcome"})

	// LivenessRejectionsTotal counts selfies rejected for missing faces.
	LivenessRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firma_liveness_rejections_total",
		Help: "Total number of selfies rejected because no face was detected",
	})

	// PipelineDuration records the latency of document pipeline stages.
	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firma_pipeline_duration_seconds",
		Help:    "Latency of document pipeline stages in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// NotificationsTotal counts outbound notifications by outcome.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firma_notifications_total",
		Help: "Total number of outbound notifications by outcome",
	}, []string{"outcome"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firma_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)

// TrackStage returns a function that records stage latency when called (e.g. defer).
func TrackStage(stage string) func() {
	start := time.Now()
	return func() {
		PipelineDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
