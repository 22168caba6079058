package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts HTTP requests by status code, method, and route
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "challenges",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"status", "method", "route"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "challenges",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ChallengesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "challenges", Name: "created_total", Help: "Challenges created",
	})
	SubmissionsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "challenges", Name: "submissions_submitted_total", Help: "Submissions handed in",
	})
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenges", Name: "uploads_total", Help: "Stored uploads by resource directory",
	}, []string{"resource"})
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "challenges", Name: "upload_bytes_total", Help: "Bytes written by uploads",
	})
	TransactionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenges", Name: "transaction_errors_total", Help: "Rolled back write transactions",
	}, []string{"operation"})
	DBPing = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "challenges", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func ObserveUpload(resource string, size int64) {
	Uploads.WithLabelValues(resource).Inc()
	UploadBytes.Add(float64(size))
}
