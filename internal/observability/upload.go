package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	uploadOnce           sync.Once
	uploadRequestsTotal  *prometheus.CounterVec
	uploadRejectedTotal  *prometheus.CounterVec
	uploadLatencySeconds prometheus.Histogram
)

// RegisterUploadMetrics initialises the Prometheus collectors for submission uploads.
func RegisterUploadMetrics() {
	uploadOnce.Do(func() {
		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_upload_requests_total",
			Help: "Total number of stored submission images by MIME type.",
		}, []string{"mime"})

		uploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_upload_rejected_total",
			Help: "Total number of rejected submission uploads by reason.",
		}, []string{"reason"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradeflow_upload_latency_seconds",
			Help:    "Latency distribution for submission image uploads.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		})

		prometheus.MustRegister(uploadRequestsTotal, uploadRejectedTotal, uploadLatencySeconds)
	})
}

// UploadRequests exposes the counter for stored submission images.
func UploadRequests() *prometheus.CounterVec {
	RegisterUploadMetrics()
	return uploadRequestsTotal
}

// UploadRejected exposes the counter for rejected uploads.
func UploadRejected() *prometheus.CounterVec {
	RegisterUploadMetrics()
	return uploadRejectedTotal
}

// UploadLatency exposes the latency histogram for uploads.
func UploadLatency() prometheus.Histogram {
	RegisterUploadMetrics()
	return uploadLatencySeconds
}
