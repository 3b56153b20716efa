package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orgcal"

var (
	once sync.Once

	seriesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_created_total",
			Help:      "Count of events created, by recurrence frequency.",
		},
		[]string{"frequency"},
	)

	occurrencesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occurrences_generated_total",
			Help:      "Count of occurrences expanded from recurrence rules.",
		},
	)

	generationTruncated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_truncated_total",
			Help:      "Count of series rejected because they exceeded the instance cap.",
		},
	)

	conflictsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Count of bookings blocked by a room conflict, by operation.",
		},
		[]string{"operation"},
	)

	eventsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_deleted_total",
			Help:      "Count of deleted event rows, by scope.",
		},
		[]string{"scope"},
	)

	layoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_pack_seconds",
			Help:      "Time spent packing a day of events into columns.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			seriesCreated, occurrencesGenerated, generationTruncated,
			conflictsDetected, eventsDeleted, layoutDuration, httpRequests,
		)
	})
}

func IncSeriesCreated(frequency string) {
	seriesCreated.WithLabelValues(frequency).Inc()
}

func AddOccurrencesGenerated(n int) {
	occurrencesGenerated.Add(float64(n))
}

func IncGenerationTruncated() {
	generationTruncated.Inc()
}

func IncConflict(operation string) {
	conflictsDetected.WithLabelValues(operation).Inc()
}

func AddEventsDeleted(scope string, n int64) {
	eventsDeleted.WithLabelValues(scope).Add(float64(n))
}

func ObserveLayout(d time.Duration) {
	layoutDuration.Observe(d.Seconds())
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
