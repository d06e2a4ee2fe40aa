package monitoring

import (
	"time"
)

// External dependencies guarded by a Breaker.
const (
	APIEventWebhook = "event_webhook"
	APIRedis        = "redis"
)

// JobOrderExpirySweep is the cron job returning custody of overdue open
// orders.
const JobOrderExpirySweep = "order_expiry_sweep"

// CircuitBreakerConfig maps onto gobreaker.Settings. The circuit opens after
// ConsecutiveFailureThreshold failures in a row and half-opens after Timeout.
type CircuitBreakerConfig struct {
	MaxRequests                 uint32        `json:"max_requests"`
	Interval                    time.Duration `json:"interval"`
	Timeout                     time.Duration `json:"timeout"`
	ConsecutiveFailureThreshold int           `json:"consecutive_failure_threshold"`
}

// TimeoutConfig bounds a single call. Calls labelled "health_check" use
// HealthCheckTimeout, everything else RequestTimeout.
type TimeoutConfig struct {
	ConnectionTimeout  time.Duration `json:"connection_timeout"`
	RequestTimeout     time.Duration `json:"request_timeout"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout"`
}

// APIErrorType is the error_type label of a failed external call.
type APIErrorType string

const (
	ErrorTypeTimeout      APIErrorType = "timeout"
	ErrorTypeNetworkError APIErrorType = "network_error"
	ErrorTypeServerError  APIErrorType = "server_error"
	ErrorTypeClientError  APIErrorType = "client_error"
	ErrorTypeCircuitOpen  APIErrorType = "circuit_open"
	ErrorTypeUnknown      APIErrorType = "unknown"
)

// Redis sits on the request path of every idempotent call, so it trips
// sooner and recovers faster than the webhook.
var CircuitBreakerConfigs = map[string]CircuitBreakerConfig{
	APIRedis:        {MaxRequests: 5, Interval: 30 * time.Second, Timeout: 15 * time.Second, ConsecutiveFailureThreshold: 3},
	APIEventWebhook: {MaxRequests: 3, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailureThreshold: 5},
}

var DefaultTimeoutConfig = TimeoutConfig{
	ConnectionTimeout:  5 * time.Second,
	RequestTimeout:     10 * time.Second,
	HealthCheckTimeout: 3 * time.Second,
}

var TimeoutConfigs = map[string]TimeoutConfig{
	APIRedis:        {ConnectionTimeout: time.Second, RequestTimeout: 2 * time.Second, HealthCheckTimeout: time.Second},
	APIEventWebhook: DefaultTimeoutConfig,
}

func timeoutsFor(api string) TimeoutConfig {
	if t, ok := TimeoutConfigs[api]; ok {
		return t
	}
	return DefaultTimeoutConfig
}
