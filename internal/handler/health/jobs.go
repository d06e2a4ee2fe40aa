package health

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
)

// criticalFailureThreshold consecutive failures of a critical job make the
// service unhealthy. Open orders past expiry keep their custody locked
// until the sweep recovers.
const criticalFailureThreshold = 3

var criticalJobs = map[string]bool{
	monitoring.JobOrderExpirySweep: true,
}

// jobsVerdict grades the background jobs and names the critical ones that
// crossed the failure threshold.
func jobsVerdict(jobs map[string]monitoring.JobStatus, summary monitoring.JobsSummary) (string, []string) {
	var failing []string
	for name, status := range jobs {
		if criticalJobs[name] && status.Status == monitoring.JobStatusFailed &&
			status.ConsecutiveFailures >= criticalFailureThreshold {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	switch {
	case summary.StalledJobs > 0, len(failing) > 0:
		return statusUnhealthy, failing
	case summary.UnhealthyJobs > 0:
		return statusDegraded, nil
	}
	return statusHealthy, nil
}

// Jobs handles the background jobs health check endpoint
// @Summary Background jobs health check
// @Description Reports the expiry sweep and any other scheduled job
// @Tags health
// @Produce json
// @Success 200 {object} JobsHealthResponse
// @Success 206 {object} JobsHealthResponse
// @Failure 503 {object} JobsHealthResponse
// @Router /api/v1/health/jobs [get]
func (h *HealthHandler) Jobs(c *gin.Context) {
	start := time.Now()

	if h.jobStatusManager == nil {
		c.JSON(http.StatusServiceUnavailable, JobsHealthResponse{
			Status:    statusUnhealthy,
			Timestamp: time.Now(),
			Jobs:      map[string]monitoring.JobStatus{},
		})
		return
	}

	jobs := h.jobStatusManager.GetAllJobStatuses()
	summary := h.jobStatusManager.GetJobsSummary()
	verdict, failing := jobsVerdict(jobs, summary)

	response := JobsHealthResponse{
		Status:      verdict,
		Timestamp:   time.Now(),
		Jobs:        jobs,
		Summary:     summary,
		FailingJobs: failing,
		DurationMs:  time.Since(start).Milliseconds(),
	}

	statusCode := http.StatusOK
	switch verdict {
	case statusUnhealthy:
		statusCode = http.StatusServiceUnavailable
	case statusDegraded:
		statusCode = http.StatusPartialContent
	}

	fields := map[string]string{
		"status":         verdict,
		"total_jobs":     strconv.Itoa(summary.TotalJobs),
		"unhealthy_jobs": strconv.Itoa(summary.UnhealthyJobs),
		"stalled_jobs":   strconv.Itoa(summary.StalledJobs),
	}
	if len(failing) > 0 {
		fields["failing"] = strings.Join(failing, ",")
		h.logger.Warn("[Jobs] critical job failing", fields)
	} else {
		h.logger.Debug("[Jobs] health check completed", fields)
	}

	c.JSON(statusCode, response)
}
