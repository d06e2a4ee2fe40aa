package monitoring

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

// Breaker guards calls to one external dependency. Calls fail fast while
// the circuit is open and are cut off at the request timeout otherwise.
type Breaker struct {
	name           string
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
	timeoutConfig  TimeoutConfig
}

func NewBreaker(name string, config CircuitBreakerConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) (*Breaker, error) {
	return NewBreakerWithTimeout(name, config, timeoutsFor(name), metrics, logger)
}

func NewBreakerWithTimeout(name string, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) (*Breaker, error) {
	if err := validateCircuitBreakerConfig(config); err != nil {
		return nil, errors.Wrapf(err, "%s circuit breaker", name)
	}

	b := &Breaker{
		name:          name,
		metrics:       metrics,
		logger:        logger,
		timeoutConfig: timeoutConfig,
	}
	b.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("[Breaker] circuit breaker state change", map[string]string{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(name, to)
		},
	})
	metrics.UpdateCircuitBreakerState(name, gobreaker.StateClosed)
	return b, nil
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() gobreaker.State {
	return b.circuitBreaker.State()
}

// Execute runs fn through the circuit breaker. operation labels the call in
// metrics; "health_check" uses the shorter health check timeout.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	_, err := b.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, b.executeWithTimeout(ctx, operation, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.metrics.RecordAPICall(b.name, operation, string(ErrorTypeCircuitOpen), 0)
	}
	return err
}

func (b *Breaker) executeWithTimeout(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()

	timeout := b.timeoutConfig.RequestTimeout
	if operation == "health_check" {
		timeout = b.timeoutConfig.HealthCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return b.timedOut(operation, start, ctx.Err())
		}
		duration := time.Since(start).Seconds()
		status := "success"
		if err != nil {
			status = "error"
			b.logError(operation, duration, err)
		}
		b.metrics.RecordAPICall(b.name, operation, status, duration)
		return err

	case <-ctx.Done():
		return b.timedOut(operation, start, ctx.Err())
	}
}

func (b *Breaker) timedOut(operation string, start time.Time, err error) error {
	b.metrics.RecordTimeout(b.name, operation)
	b.logError(operation, time.Since(start).Seconds(), err)
	return errors.Wrap(err, "timeout")
}

func (b *Breaker) logError(operation string, duration float64, err error) {
	b.logger.Error("[Breaker] external call failed", map[string]string{
		"service":    b.name,
		"operation":  operation,
		"duration":   strconv.FormatFloat(duration, 'f', 3, 64),
		"error":      err.Error(),
		"error_type": string(classifyError(err)),
		"cb_state":   b.circuitBreaker.State().String(),
	})
}

// classifyError classifies errors into different types for metrics and logging
func classifyError(err error) APIErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorTypeCircuitOpen
	}

	msg := strings.ToLower(err.Error())
	contains := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("timeout", "deadline exceeded", "context canceled"):
		return ErrorTypeTimeout
	case contains("network", "connection", "unreachable", "dns"):
		return ErrorTypeNetworkError
	case contains("500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable"):
		return ErrorTypeServerError
	case contains("400", "401", "403", "404", "429", "bad request", "unauthorized", "forbidden", "not found", "rate limit"):
		return ErrorTypeClientError
	}
	return ErrorTypeUnknown
}

func validateCircuitBreakerConfig(config CircuitBreakerConfig) error {
	if config.MaxRequests == 0 {
		return errors.New("max_requests must be greater than 0")
	}
	if config.ConsecutiveFailureThreshold <= 0 {
		return errors.New("consecutive_failure_threshold must be greater than 0")
	}
	if config.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}
	if config.Interval < 0 {
		return errors.New("interval must be non-negative")
	}
	return nil
}
