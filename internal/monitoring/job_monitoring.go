package monitoring

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

// JobExecutionStatus is the state of a background job's latest run.
type JobExecutionStatus string

const (
	JobStatusPending JobExecutionStatus = "pending"
	JobStatusRunning JobExecutionStatus = "running"
	JobStatusSuccess JobExecutionStatus = "success"
	JobStatusFailed  JobExecutionStatus = "failed"
	JobStatusStalled JobExecutionStatus = "stalled"
)

const (
	defaultStalledAfter = 5 * time.Minute
	stalledCheckEvery   = time.Minute
)

// JobStatus is the run history of one job as reported by /health/jobs.
type JobStatus struct {
	JobName             string                 `json:"job_name"`
	Status              JobExecutionStatus     `json:"status"`
	LastRunTime         time.Time              `json:"last_run_time"`
	LastDuration        time.Duration          `json:"last_duration_ms"`
	SuccessCount        int64                  `json:"success_count"`
	FailureCount        int64                  `json:"failure_count"`
	ConsecutiveFailures int64                  `json:"consecutive_failures"`
	LastError           string                 `json:"last_error,omitempty"`
	AverageExecution    time.Duration          `json:"average_execution_ms"`
	MaxExecutionTime    time.Duration          `json:"max_execution_ms"`
	MinExecutionTime    time.Duration          `json:"min_execution_ms"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

func (s *JobStatus) runs() int64 {
	return s.SuccessCount + s.FailureCount
}

// observe folds one run's duration into the min, max and mean.
func (s *JobStatus) observe(d time.Duration) {
	n := time.Duration(s.runs())
	s.AverageExecution = (s.AverageExecution*n + d) / (n + 1)
	s.LastDuration = d
	s.MinExecutionTime = min(s.MinExecutionTime, d)
	s.MaxExecutionTime = max(s.MaxExecutionTime, d)
}

func (s *JobStatus) clone() JobStatus {
	c := *s
	c.Metadata = make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	return c
}

type JobsSummary struct {
	TotalJobs      int       `json:"total_jobs"`
	RunningJobs    int       `json:"running_jobs"`
	HealthyJobs    int       `json:"healthy_jobs"`
	UnhealthyJobs  int       `json:"unhealthy_jobs"`
	StalledJobs    int       `json:"stalled_jobs"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// JobStatusManager keeps the run history of every cron job. A run still
// going after stalledThreshold is reported as stalled.
type JobStatusManager struct {
	logger           *logger.Logger
	metrics          *BackgroundJobMetrics
	stalledThreshold time.Duration

	mu       sync.RWMutex
	statuses map[string]*JobStatus

	stop     chan struct{}
	stopOnce sync.Once
}

// NewJobStatusManager starts the stalled job check; Stop ends it.
func NewJobStatusManager(logger *logger.Logger, metrics *BackgroundJobMetrics) *JobStatusManager {
	jsm := &JobStatusManager{
		logger:           logger,
		metrics:          metrics,
		stalledThreshold: defaultStalledAfter,
		statuses:         make(map[string]*JobStatus),
		stop:             make(chan struct{}),
	}
	go jsm.watchStalled(stalledCheckEvery)
	return jsm
}

func (jsm *JobStatusManager) Stop() {
	jsm.stopOnce.Do(func() { close(jsm.stop) })
}

// entry returns the status of jobName, creating it in state st. Callers
// hold mu.
func (jsm *JobStatusManager) entry(jobName string, st JobExecutionStatus) (*JobStatus, bool) {
	if s, ok := jsm.statuses[jobName]; ok {
		return s, false
	}
	now := time.Now()
	s := &JobStatus{
		JobName:          jobName,
		Status:           st,
		Metadata:         make(map[string]interface{}),
		MinExecutionTime: time.Duration(math.MaxInt64),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	jsm.statuses[jobName] = s
	return s, true
}

func (jsm *JobStatusManager) isStalled(s *JobStatus, now time.Time) bool {
	return s.Status == JobStatusStalled ||
		(s.Status == JobStatusRunning && now.Sub(s.LastRunTime) > jsm.stalledThreshold)
}

// RegisterJob makes a job visible before its first run. Registering twice
// keeps the existing history.
func (jsm *JobStatusManager) RegisterJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	if _, created := jsm.entry(jobName, JobStatusPending); created {
		jsm.logger.Info("[RegisterJob] job registered", map[string]string{
			"job_name": jobName,
		})
	}
}

func (jsm *JobStatusManager) StartJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	s, _ := jsm.entry(jobName, JobStatusRunning)
	s.Status = JobStatusRunning
	s.LastRunTime = time.Now()
	s.UpdatedAt = s.LastRunTime
	jsm.metrics.activeJobs.Inc()
}

// CompleteJob closes the run opened by StartJob. metadata is merged into
// the status; err decides success or failure.
func (jsm *JobStatusManager) CompleteJob(jobName string, err error, metadata map[string]interface{}) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	s, ok := jsm.statuses[jobName]
	if !ok {
		jsm.logger.Error("[CompleteJob] job was never started", map[string]string{
			"job_name": jobName,
		})
		return
	}
	defer jsm.metrics.activeJobs.Dec()

	elapsed := time.Since(s.LastRunTime)
	s.observe(elapsed)
	s.UpdatedAt = time.Now()
	for k, v := range metadata {
		s.Metadata[k] = v
	}

	if err == nil {
		s.Status = JobStatusSuccess
		s.SuccessCount++
		s.ConsecutiveFailures = 0
		s.LastError = ""
		delete(s.Metadata, "error_type")
		jsm.metrics.observeRun(jobName, JobStatusSuccess, elapsed)
		return
	}

	s.Status = JobStatusFailed
	s.FailureCount++
	s.ConsecutiveFailures++
	s.LastError = err.Error()
	if _, set := s.Metadata["error_type"]; !set {
		s.Metadata["error_type"] = classifyJobError(err)
	}
	jsm.metrics.observeRun(jobName, JobStatusFailed, elapsed)
	jsm.logger.Error("[CompleteJob] job failed", map[string]string{
		"job_name":             jobName,
		"error":                err.Error(),
		"error_type":           fmt.Sprint(s.Metadata["error_type"]),
		"consecutive_failures": strconv.FormatInt(s.ConsecutiveFailures, 10),
	})
}

func (jsm *JobStatusManager) GetJobStatus(jobName string) (*JobStatus, bool) {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	s, ok := jsm.statuses[jobName]
	if !ok {
		return nil, false
	}
	c := s.clone()
	return &c, true
}

// GetAllJobStatuses returns a snapshot keyed by job name. Overdue runs are
// reported as stalled even before the background check marks them.
func (jsm *JobStatusManager) GetAllJobStatuses() map[string]JobStatus {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	now := time.Now()
	out := make(map[string]JobStatus, len(jsm.statuses))
	for name, s := range jsm.statuses {
		c := s.clone()
		if jsm.isStalled(s, now) {
			c.Status = JobStatusStalled
		}
		out[name] = c
	}
	return out
}

func (jsm *JobStatusManager) GetJobsSummary() JobsSummary {
	statuses := jsm.GetAllJobStatuses()
	summary := JobsSummary{TotalJobs: len(statuses), LastUpdateTime: time.Now()}
	for _, s := range statuses {
		switch s.Status {
		case JobStatusPending, JobStatusSuccess:
			summary.HealthyJobs++
		case JobStatusRunning:
			summary.RunningJobs++
		case JobStatusFailed:
			summary.UnhealthyJobs++
		case JobStatusStalled:
			summary.StalledJobs++
		}
	}
	return summary
}

func (jsm *JobStatusManager) watchStalled(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-jsm.stop:
			return
		case <-ticker.C:
			jsm.detectStalledJobs()
		}
	}
}

func (jsm *JobStatusManager) detectStalledJobs() {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	now := time.Now()
	stalled := 0
	for name, s := range jsm.statuses {
		if !jsm.isStalled(s, now) {
			continue
		}
		stalled++
		if s.Status == JobStatusStalled {
			continue
		}
		s.Status = JobStatusStalled
		s.UpdatedAt = now
		jsm.logger.Error("[detectStalledJobs] job stalled", map[string]string{
			"job_name":    name,
			"running_for": now.Sub(s.LastRunTime).String(),
		})
	}
	jsm.metrics.stalledJobs.Set(float64(stalled))
}

// JobFunc is one run of a background job. The returned metadata is merged
// into the job status shown by the jobs health check.
type JobFunc func(ctx context.Context) (map[string]interface{}, error)

type jobResult struct {
	err      error
	metadata map[string]interface{}
}

// InstrumentedJob is a cron.Job that records every run on a
// JobStatusManager. Runs are bounded by timeout and panics are recovered.
type InstrumentedJob struct {
	name    string
	fn      JobFunc
	jsm     *JobStatusManager
	logger  *logger.Logger
	timeout time.Duration
}

func NewInstrumentedJob(name string, fn JobFunc, jsm *JobStatusManager, logger *logger.Logger, timeout time.Duration) *InstrumentedJob {
	jsm.RegisterJob(name)
	return &InstrumentedJob{name: name, fn: fn, jsm: jsm, logger: logger, timeout: timeout}
}

func (ij *InstrumentedJob) Run() {
	ij.Execute(context.Background())
}

// Execute runs the job once. A run that outlives its context is recorded
// as a timeout without waiting for it.
func (ij *InstrumentedJob) Execute(parent context.Context) {
	ij.jsm.StartJob(ij.name)

	ctx, cancel := context.WithTimeout(parent, ij.timeout)
	defer cancel()

	done := make(chan jobResult, 1)
	go func() { done <- ij.guarded(ctx) }()

	var res jobResult
	select {
	case res = <-done:
	case <-ctx.Done():
		ij.jsm.metrics.jobTimeouts.WithLabelValues(ij.name).Inc()
		res = jobResult{
			err:      errors.Errorf("job timeout after %v", ij.timeout),
			metadata: map[string]interface{}{"error_type": "timeout", "timeout": ij.timeout.String()},
		}
	}
	ij.jsm.CompleteJob(ij.name, res.err, res.metadata)
}

func (ij *InstrumentedJob) guarded(ctx context.Context) (res jobResult) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ij.logger.Error("[InstrumentedJob] job panicked", map[string]string{
			"job_name": ij.name,
			"panic":    fmt.Sprint(r),
		})
		res = jobResult{
			err: errors.Errorf("job panicked: %v", r),
			metadata: map[string]interface{}{
				"error_type":  "panic",
				"panic":       fmt.Sprint(r),
				"stack_trace": string(debug.Stack()),
			},
		}
	}()
	metadata, err := ij.fn(ctx)
	return jobResult{err: err, metadata: metadata}
}

// classifyJobError labels a failed run. Engine errors carry their own
// kind; anything else is sorted by its message.
func classifyJobError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if kind := model.KindOf(err); kind != model.KindInternal {
		return string(kind)
	}

	msg := strings.ToLower(err.Error())
	for _, c := range []struct{ label, words string }{
		{"timeout", "timeout deadline"},
		{"database", "database sql gorm"},
		{"lock", "lock"},
		{"network", "connection network refused"},
		{"panic", "panic"},
	} {
		for _, w := range strings.Fields(c.words) {
			if strings.Contains(msg, w) {
				return c.label
			}
		}
	}
	return "unknown"
}
