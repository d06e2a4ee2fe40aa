package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

// HealthHandler implements IHealthHandler interface
type HealthHandler struct {
	config           *config.AppConfig
	logger           *logger.Logger
	db               *gorm.DB
	redis            *redis.Client
	webhookBreaker   *monitoring.Breaker
	jobStatusManager *monitoring.JobStatusManager

	// external check results, so probes do not hammer redis
	cache *gocache.Cache
}

const (
	externalCacheKey = "external"
	externalCacheTTL = 5 * time.Second
)

// New creates a new health handler instance. redis and webhookBreaker are
// nil when the deployment does not use them.
func New(config *config.AppConfig, logger *logger.Logger, db *gorm.DB, redis *redis.Client, webhookBreaker *monitoring.Breaker, jobStatusManager *monitoring.JobStatusManager) IHealthHandler {
	return &HealthHandler{
		config:           config,
		logger:           logger,
		db:               db,
		redis:            redis,
		webhookBreaker:   webhookBreaker,
		jobStatusManager: jobStatusManager,
		cache:            gocache.New(externalCacheTTL, time.Minute),
	}
}

// Basic handles the basic health check endpoint (/healthz)
// @Summary Basic health check
// @Description Returns basic system availability status
// @Tags health
// @Produce json
// @Success 200 {object} BasicHealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Basic(c *gin.Context) {
	c.JSON(http.StatusOK, BasicHealthResponse{Message: "ok"})
}

// Database handles the database health check endpoint
// @Summary Database health check
// @Description Validates database connectivity and reports pool usage
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/db [get]
func (h *HealthHandler) Database(c *gin.Context) {
	start := time.Now()

	ctx := context.Background()
	if c.Request != nil {
		ctx = c.Request.Context()
	}

	dbCheck := h.checkDatabase(ctx)
	response := HealthResponse{
		Status:     dbCheck.Status,
		Timestamp:  start,
		Checks:     map[string]HealthCheck{"database": dbCheck},
		DurationMs: time.Since(start).Milliseconds(),
	}

	if dbCheck.Status == statusHealthy {
		c.JSON(http.StatusOK, response)
		return
	}
	c.JSON(http.StatusServiceUnavailable, response)
}

// External handles the dependency health check endpoint
// @Summary Dependencies health check
// @Description Checks the lock backend and the event webhook circuit
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Success 206 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/external [get]
func (h *HealthHandler) External(c *gin.Context) {
	if h.cache != nil {
		if cached, ok := h.cache.Get(externalCacheKey); ok {
			response := cached.(HealthResponse)
			c.JSON(externalStatusCode(response.Status), response)
			return
		}
	}
	start := time.Now()

	baseCtx := context.Background()
	if c.Request != nil {
		baseCtx = c.Request.Context()
	}
	ctx, cancel := context.WithTimeout(baseCtx, monitoring.DefaultTimeoutConfig.RequestTimeout)
	defer cancel()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, check := range map[string]func(context.Context) HealthCheck{
		"redis":         h.checkRedis,
		"event_webhook": h.checkWebhook,
	} {
		wg.Add(1)
		go func(name string, check func(context.Context) HealthCheck) {
			defer wg.Done()
			result := check(ctx)
			mu.Lock()
			response.Checks[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	response.DurationMs = time.Since(start).Milliseconds()

	// the lock backend is required, a tripped webhook only delays notifications
	response.Status = statusHealthy
	if response.Checks["event_webhook"].Status == statusUnhealthy {
		response.Status = statusDegraded
	}
	if response.Checks["redis"].Status == statusUnhealthy {
		response.Status = statusUnhealthy
	}

	if h.cache != nil {
		h.cache.SetDefault(externalCacheKey, response)
	}
	c.JSON(externalStatusCode(response.Status), response)
}

func externalStatusCode(status string) int {
	switch status {
	case statusHealthy:
		return http.StatusOK
	case statusDegraded:
		return http.StatusPartialContent
	}
	return http.StatusServiceUnavailable
}

// checkDatabase performs database health validation
func (h *HealthHandler) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{Metadata: make(map[string]interface{})}

	if h.db == nil {
		check.Status = statusUnhealthy
		check.Error = "database connection not available"
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		check.Status = statusUnhealthy
		check.Error = fmt.Sprintf("failed to get underlying database: %v", err)
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	pingCtx, cancel := context.WithTimeout(ctx, monitoring.DefaultTimeoutConfig.ConnectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		check.Status = statusUnhealthy
		if pingCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = err.Error()
		}
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	stats := sqlDB.Stats()
	check.Status = statusHealthy
	check.Latency = time.Since(start).Milliseconds()
	check.Metadata["driver"] = h.db.Dialector.Name()
	check.Metadata["connection_pool"] = map[string]interface{}{
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"max_open":         stats.MaxOpenConnections,
	}
	return check
}

// checkRedis pings the lock backend. Without redis the service serializes
// orders in process and the check reports disabled.
func (h *HealthHandler) checkRedis(ctx context.Context) HealthCheck {
	start := time.Now()
	if h.redis == nil {
		return HealthCheck{
			Status:   statusDisabled,
			Metadata: map[string]interface{}{"locker": "local"},
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, monitoring.DefaultTimeoutConfig.HealthCheckTimeout)
	defer cancel()

	check := HealthCheck{Metadata: map[string]interface{}{"locker": "redis"}}
	if err := h.redis.Ping(pingCtx).Err(); err != nil {
		check.Status = statusUnhealthy
		if pingCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = err.Error()
		}
	} else {
		check.Status = statusHealthy
		stats := h.redis.PoolStats()
		check.Metadata["total_conns"] = stats.TotalConns
		check.Metadata["idle_conns"] = stats.IdleConns
	}
	check.Latency = time.Since(start).Milliseconds()
	return check
}

// checkWebhook reports the webhook circuit without calling the endpoint.
func (h *HealthHandler) checkWebhook(_ context.Context) HealthCheck {
	if h.webhookBreaker == nil {
		return HealthCheck{Status: statusDisabled}
	}

	state := h.webhookBreaker.State()
	check := HealthCheck{
		Status:   statusHealthy,
		Metadata: map[string]interface{}{"circuit": state.String()},
	}
	if state == gobreaker.StateOpen {
		check.Status = statusUnhealthy
		check.Error = "circuit open"
	}
	return check
}
