package health

import (
	"time"

	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusDisabled  = "disabled"
)

type BasicHealthResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the shape of the database and external checks.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Checks     map[string]HealthCheck `json:"checks"`
	DurationMs int64                  `json:"duration_ms"`
}

// HealthCheck is one dependency. Latency is omitted for disabled checks.
type HealthCheck struct {
	Status   string                 `json:"status"`
	Latency  int64                  `json:"latency_ms,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// JobsHealthResponse lists every registered job. FailingJobs names the
// critical jobs that made the check unhealthy.
type JobsHealthResponse struct {
	Status      string                          `json:"status"`
	Timestamp   time.Time                       `json:"timestamp"`
	Jobs        map[string]monitoring.JobStatus `json:"jobs"`
	Summary     monitoring.JobsSummary          `json:"summary"`
	FailingJobs []string                        `json:"failing_jobs,omitempty"`
	DurationMs  int64                           `json:"duration_ms"`
}
