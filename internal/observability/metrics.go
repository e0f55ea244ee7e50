package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels a finished grading job or AI call.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder is the passive sink the grading pipeline reports into. Recording
// never fails and never aborts grading.
type Recorder interface {
	JobEnqueued()
	JobCompleted(outcome string)
	ProcessingTime(d time.Duration)
	ConfidenceScore(confidence float64)
	ReviewFlagged()
	AICall(outcome string)
	QueueReceiveError()
}

var (
	gradingOnce           sync.Once
	gradingJobsEnqueued   prometheus.Counter
	gradingJobsCompleted  *prometheus.CounterVec
	gradingProcessingTime prometheus.Histogram
	gradingConfidence     prometheus.Histogram
	gradingReviewsFlagged prometheus.Counter
	aiCallsTotal          *prometheus.CounterVec
	queueReceiveErrors    prometheus.Counter
)

// RegisterGradingMetrics initialises the Prometheus collectors for the grading
// pipeline. Safe to call more than once.
func RegisterGradingMetrics() {
	gradingOnce.Do(func() {
		gradingJobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradeflow_grading_jobs_enqueued_total",
			Help: "Total number of grading jobs published to the queue.",
		})

		gradingJobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_grading_jobs_completed_total",
			Help: "Total number of grading jobs processed, by outcome.",
		}, []string{"outcome"})

		gradingProcessingTime = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradeflow_grading_processing_seconds",
			Help:    "Wall-clock duration of one grading pass.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		gradingConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradeflow_grading_confidence_score",
			Help:    "Distribution of aggregate confidence scores (0.0-1.0).",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
		})

		gradingReviewsFlagged = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradeflow_grading_reviews_flagged_total",
			Help: "Total number of grading results flagged for manual review.",
		})

		aiCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_ai_calls_total",
			Help: "Total number of AI grading calls, by outcome.",
		}, []string{"outcome"})

		queueReceiveErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gradeflow_queue_receive_errors_total",
			Help: "Total number of failed queue receive cycles.",
		})

		prometheus.MustRegister(
			gradingJobsEnqueued,
			gradingJobsCompleted,
			gradingProcessingTime,
			gradingConfidence,
			gradingReviewsFlagged,
			aiCallsTotal,
			queueReceiveErrors,
		)
	})
}

type prometheusRecorder struct{}

// NewRecorder returns the Prometheus-backed metrics recorder.
func NewRecorder() Recorder {
	RegisterGradingMetrics()
	return prometheusRecorder{}
}

func (prometheusRecorder) JobEnqueued() {
	gradingJobsEnqueued.Inc()
}

func (prometheusRecorder) JobCompleted(outcome string) {
	gradingJobsCompleted.WithLabelValues(outcome).Inc()
}

func (prometheusRecorder) ProcessingTime(d time.Duration) {
	gradingProcessingTime.Observe(d.Seconds())
}

func (prometheusRecorder) ConfidenceScore(confidence float64) {
	gradingConfidence.Observe(confidence)
}

func (prometheusRecorder) ReviewFlagged() {
	gradingReviewsFlagged.Inc()
}

func (prometheusRecorder) AICall(outcome string) {
	aiCallsTotal.WithLabelValues(outcome).Inc()
}

func (prometheusRecorder) QueueReceiveError() {
	queueReceiveErrors.Inc()
}

// NopRecorder discards every observation. Used in tests.
type NopRecorder struct{}

func (NopRecorder) JobEnqueued()                  {}
func (NopRecorder) JobCompleted(string)           {}
func (NopRecorder) ProcessingTime(time.Duration)  {}
func (NopRecorder) ConfidenceScore(float64)       {}
func (NopRecorder) ReviewFlagged()                {}
func (NopRecorder) AICall(string)                 {}
func (NopRecorder) QueueReceiveError()            {}
