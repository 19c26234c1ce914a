package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	pipelineRequestsTotal   *prometheus.CounterVec
	pipelineLatencySeconds  *prometheus.HistogramVec
	pipelineErrorsTotal     *prometheus.CounterVec
	submissionsRecordedTotal prometheus.Counter
	feedbackIngestedTotal   prometheus.Counter
	securityRejectionsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		pipelineRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_pipeline_requests_total",
			Help: "Total number of grading callback requests served.",
		}, []string{"method", "route", "status"})

		pipelineLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_pipeline_latency_seconds",
			Help:    "Latency distribution for grading callback requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "route"})

		pipelineErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_pipeline_errors_total",
			Help: "Total number of error responses returned by grading callbacks.",
		}, []string{"method", "route", "status"})

		submissionsRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grader_submissions_recorded_total",
			Help: "Total number of submissions durably recorded.",
		})

		feedbackIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grader_feedback_ingested_total",
			Help: "Total number of grading reports ingested.",
		})

		securityRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_security_rejections_total",
			Help: "Total number of requests rejected at a trust boundary.",
		}, []string{"reason"})

		prometheus.MustRegister(
			pipelineRequestsTotal,
			pipelineLatencySeconds,
			pipelineErrorsTotal,
			submissionsRecordedTotal,
			feedbackIngestedTotal,
			securityRejectionsTotal,
		)
	})
}

// PipelineRequests exposes the counter for callback requests.
func PipelineRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineRequestsTotal
}

// PipelineLatency exposes the latency histogram for callback requests.
func PipelineLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return pipelineLatencySeconds
}

// PipelineErrors exposes the counter for callback error responses.
func PipelineErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return pipelineErrorsTotal
}

// SubmissionsRecorded exposes the counter for recorded submissions.
func SubmissionsRecorded() prometheus.Counter {
	RegisterMetrics()
	return submissionsRecordedTotal
}

// FeedbackIngested exposes the counter for ingested grading reports.
func FeedbackIngested() prometheus.Counter {
	RegisterMetrics()
	return feedbackIngestedTotal
}

// SecurityRejections exposes the counter for trust-boundary rejections.
func SecurityRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return securityRejectionsTotal
}
