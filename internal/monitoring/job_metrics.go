package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackgroundJobMetrics covers the cron jobs tracked by JobStatusManager.
type BackgroundJobMetrics struct {
	jobDuration *prometheus.HistogramVec
	jobRuns     *prometheus.CounterVec
	activeJobs  prometheus.Gauge
	stalledJobs prometheus.Gauge
	jobTimeouts *prometheus.CounterVec
}

func NewBackgroundJobMetrics() *BackgroundJobMetrics {
	return &BackgroundJobMetrics{
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusion_bridge_background_job_duration_seconds",
			Help:    "Duration of background job runs",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 300},
		}, []string{"job_name", "status"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_bridge_background_job_runs_total",
			Help: "Background job runs by outcome",
		}, []string{"job_name", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_bridge_background_jobs_active",
			Help: "Background jobs currently running",
		}),
		stalledJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_bridge_background_jobs_stalled",
			Help: "Background jobs running past the stalled threshold",
		}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_bridge_job_timeouts_total",
			Help: "Background job runs abandoned at their timeout",
		}, []string{"job_name"}),
	}
}

func (m *BackgroundJobMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.jobDuration, m.jobRuns, m.activeJobs, m.stalledJobs, m.jobTimeouts)
}

func (m *BackgroundJobMetrics) observeRun(jobName string, status JobExecutionStatus, d time.Duration) {
	m.jobRuns.WithLabelValues(jobName, string(status)).Inc()
	m.jobDuration.WithLabelValues(jobName, string(status)).Observe(d.Seconds())
}
