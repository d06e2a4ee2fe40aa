package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
	"github.com/dwarvesf/fusion-bridge/internal/view"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "X-Idempotency-Replayed"

	processingMarker = "processing"
	processingTTL    = 30 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a write request carrying an
// Idempotency-Key. Keys are scoped to the caller, method and path. Only 2xx
// responses are stored, so a failed request can be retried with the same
// key. Redis failures let the request through unreplayed.
type Idempotency struct {
	client  *redis.Client
	breaker *monitoring.Breaker
	metrics *monitoring.HTTPMetrics
	logger  *logger.Logger
	ttl     time.Duration
}

// NewIdempotency returns nil when client is nil; a nil *Idempotency
// middleware passes every request through.
func NewIdempotency(client *redis.Client, breaker *monitoring.Breaker, metrics *monitoring.HTTPMetrics, logger *logger.Logger, ttl time.Duration) *Idempotency {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{
		client:  client,
		breaker: breaker,
		metrics: metrics,
		logger:  logger,
		ttl:     ttl,
	}
}

func (i *Idempotency) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if i == nil || key == "" || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storageKey := "idempotency:" + c.GetHeader(view.CallerHeader) + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		var acquired bool
		var stored string
		err := i.do(ctx, "idempotency_acquire", func(ctx context.Context) error {
			var err error
			acquired, err = i.client.SetNX(ctx, storageKey, processingMarker, processingTTL).Result()
			if err != nil || acquired {
				return err
			}
			stored, err = i.client.Get(ctx, storageKey).Result()
			if errors.Is(err, redis.Nil) {
				// released between SETNX and GET
				stored, err = processingMarker, nil
			}
			return err
		})
		if err != nil {
			i.metrics.RecordIdempotency(monitoring.IdempotencyError)
			i.logger.Warn("[Idempotency][Acquire] redis unavailable, serving request without replay", map[string]string{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			c.Next()
			return
		}

		if !acquired {
			i.replay(c, stored)
			return
		}
		i.metrics.RecordIdempotency(monitoring.IdempotencyMiss)

		w := capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w
		c.Next()

		status := w.Status()
		err = i.do(context.Background(), "idempotency_store", func(ctx context.Context) error {
			if status < 200 || status >= 300 {
				return i.client.Del(ctx, storageKey).Err()
			}
			raw, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        w.body.Bytes(),
			})
			if err != nil {
				return err
			}
			return i.client.Set(ctx, storageKey, raw, i.ttl).Err()
		})
		if err != nil {
			i.metrics.RecordIdempotency(monitoring.IdempotencyError)
			i.logger.Error("[Idempotency][Store] failed to record response", map[string]string{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
		}
	}
}

func (i *Idempotency) replay(c *gin.Context, stored string) {
	if stored == processingMarker {
		i.metrics.RecordIdempotency(monitoring.IdempotencyConflict)
		c.AbortWithStatusJSON(http.StatusConflict, view.CreateResponse[any](nil, model.ErrRequestInProgress, nil, ""))
		return
	}

	var resp storedResponse
	if err := json.Unmarshal([]byte(stored), &resp); err != nil {
		i.metrics.RecordIdempotency(monitoring.IdempotencyError)
		i.logger.Error("[Idempotency][Replay] stored response is corrupt", map[string]string{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		})
		c.AbortWithStatusJSON(http.StatusConflict, view.CreateResponse[any](nil, model.ErrRequestInProgress, nil, ""))
		return
	}

	i.metrics.RecordIdempotency(monitoring.IdempotencyReplay)
	c.Header(ReplayedHeader, "true")
	c.Data(resp.Status, resp.ContentType, resp.Body)
	c.Abort()
}

func (i *Idempotency) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if i.breaker == nil {
		return fn(ctx)
	}
	return i.breaker.Execute(ctx, operation, fn)
}
