package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

// Client delivers order events to an indexer webhook and pings the uptime
// webhook. Event delivery is best effort: an event is logged and dropped
// when the queue is full or its retries run out.
type Client struct {
	rest    *resty.Client
	breaker *monitoring.Breaker
	logger  *logger.Logger

	eventURL   string
	maxRetries int

	mu     sync.RWMutex
	closed bool
	queue  chan *model.OrderEvent
	wg     sync.WaitGroup
}

// New starts the delivery worker. breaker may be nil.
func New(cfg config.WebhookConfig, breaker *monitoring.Breaker, logger *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	c := &Client{
		rest:       resty.New().SetTimeout(timeout).SetHeader("User-Agent", "fusion-bridge"),
		breaker:    breaker,
		logger:     logger,
		eventURL:   cfg.EventURL,
		maxRetries: cfg.MaxRetries,
		queue:      make(chan *model.OrderEvent, size),
	}

	c.wg.Add(1)
	go c.run()
	return c
}

// Publish queues e without blocking the caller. Events published after
// Close are dropped.
func (c *Client) Publish(_ context.Context, e *model.OrderEvent) {
	if c.eventURL == "" || e == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Warn("[Publish] client closed, dropping event", map[string]string{
			"event_id":   e.ID,
			"order_hash": e.OrderHash,
			"type":       string(e.Type),
		})
		return
	}
	select {
	case c.queue <- e:
	default:
		c.logger.Warn("[Publish] event queue full, dropping event", map[string]string{
			"event_id":   e.ID,
			"order_hash": e.OrderHash,
			"type":       string(e.Type),
		})
	}
}

// Close stops accepting events and waits for the queued ones.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Client) run() {
	defer c.wg.Done()
	for e := range c.queue {
		if err := c.Deliver(context.Background(), e); err != nil {
			c.logger.Error("[run][Deliver] failed to deliver order event", map[string]string{
				"event_id":   e.ID,
				"order_hash": e.OrderHash,
				"type":       string(e.Type),
				"error":      err.Error(),
			})
		}
	}
}

// Deliver posts e synchronously, retrying server errors with exponential
// backoff. Client errors are not retried.
func (c *Client) Deliver(ctx context.Context, e *model.OrderEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = time.Minute

	op := func() error {
		err := c.post(ctx, body, e.ID)
		var status *statusError
		if errors.As(err, &status) && status.code < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx))
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "webhook returned " + strconv.Itoa(e.code) + " " + http.StatusText(e.code)
}

func (c *Client) post(ctx context.Context, body []byte, eventID string) error {
	send := func(ctx context.Context) error {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Idempotency-Key", eventID).
			SetBody(body).
			Post(c.eventURL)
		if err != nil {
			return errors.Wrap(err, "post event")
		}
		if resp.StatusCode() >= http.StatusMultipleChoices {
			return &statusError{code: resp.StatusCode()}
		}
		return nil
	}

	if c.breaker == nil {
		return send(ctx)
	}
	return c.breaker.Execute(ctx, "post_event", send)
}

// CallUptimeWebhook pings the uptime monitor. Failures are only logged.
func (c *Client) CallUptimeWebhook(ctx context.Context, webhookURL string) {
	if webhookURL == "" {
		return
	}

	resp, err := c.rest.R().SetContext(ctx).Get(webhookURL)
	if err != nil {
		c.logger.Error("[CallUptimeWebhook][Get]", map[string]string{
			"url":   webhookURL,
			"error": err.Error(),
		})
		return
	}

	c.logger.Debug("[CallUptimeWebhook] uptime webhook called", map[string]string{
		"url":         webhookURL,
		"status_code": resp.Status(),
	})
}
