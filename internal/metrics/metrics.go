package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingressEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmsync_ingress_events_total",
			Help: "Webhook ingress outcomes",
		},
		[]string{"outcome"}, // queued, duplicate, rejected, malformed, failed
	)

	processedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmsync_processed_events_total",
			Help: "Events drained from the queue by result",
		},
		[]string{"result"}, // succeeded, dead_lettered
	)

	retries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crmsync_event_retries_total",
			Help: "Per-event retry attempts",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmsync_queue_depth",
			Help: "Current live queue length",
		},
	)

	deadLetterDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crmsync_dead_letter_depth",
			Help: "Current dead-letter queue length",
		},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crmsync_batch_duration_seconds",
			Help:    "Batch processing time in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordIngress(outcome string) {
	ingressEvents.WithLabelValues(outcome).Inc()
}

func RecordProcessed(result string) {
	processedEvents.WithLabelValues(result).Inc()
}

func RecordRetry() {
	retries.Inc()
}

func RecordBatch(duration time.Duration) {
	batchDuration.Observe(duration.Seconds())
}

func UpdateQueueDepths(live, dead int64) {
	queueDepth.Set(float64(live))
	deadLetterDepth.Set(float64(dead))
}
