package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/your-username/logsgate/internal/models"
)

const namespace = "logsgate"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route"},
	)

	ingestRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Log records received on /ingest by admission result",
		},
		[]string{"result"},
	)

	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Background bulk submissions by final status",
		},
		[]string{"status"},
	)

	submissionQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "submission_queue_depth",
			Help:      "Submissions waiting for a worker",
		},
	)

	indexedDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_documents_total",
			Help:      "Documents sent to the backend by indexing result",
		},
		[]string{"result"},
	)

	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Search requests by result",
		},
		[]string{"result"},
	)

	queryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Backend search round-trip in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	streamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected live stream clients",
		},
	)
)

// RecordIngest counts records accepted or rejected at the API boundary
func RecordIngest(accepted bool, records int) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	ingestRecordsTotal.WithLabelValues(result).Add(float64(records))
}

// RecordSubmission counts a finished submission and its documents
func RecordSubmission(sub models.Submission) {
	submissionsTotal.WithLabelValues(string(sub.Status)).Inc()
	indexedDocumentsTotal.WithLabelValues("indexed").Add(float64(sub.Indexed))
	indexedDocumentsTotal.WithLabelValues("failed").Add(float64(sub.Failed))
}

func SetQueueDepth(n int) {
	submissionQueueDepth.Set(float64(n))
}

// RecordQuery records one search round-trip
func RecordQuery(seconds float64, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	queriesTotal.WithLabelValues(result).Inc()
	queryDuration.Observe(seconds)
}

func SetStreamClients(n int) {
	streamClients.Set(float64(n))
}
