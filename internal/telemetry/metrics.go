package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meshforge"

var (
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time from submit to terminal response",
			Buckets:   []float64{5, 15, 30, 60, 90, 120, 180, 300, 600},
		},
		[]string{"outcome"},
	)

	blobUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_uploads_total",
			Help:      "Deferred blob transfers by asset kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	blobBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_bytes_total",
			Help:      "Bytes written to object storage by deferred transfers",
		},
		[]string{"kind"},
	)
)

// RecordGeneration counts one terminal generation outcome.
func RecordGeneration(outcome string, elapsed time.Duration) {
	generationsTotal.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordBlobUpload counts one deferred blob transfer. bytes is ignored on failure.
func RecordBlobUpload(kind, outcome string, bytes int) {
	blobUploadsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == "success" {
		blobBytesTotal.WithLabelValues(kind).Add(float64(bytes))
	}
}
