package job

import (
	"context"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/controller"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/store/order"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

const defaultSweepTimeout = 30 * time.Second

// UptimePinger is notified after every successful sweep.
type UptimePinger interface {
	CallUptimeWebhook(ctx context.Context, webhookURL string)
}

// ExpirySweep returns custody of overdue Open orders to their makers and
// refreshes the per-status order gauges.
type ExpirySweep struct {
	controller controller.IController
	db         *gorm.DB
	orders     order.IStore
	metrics    *monitoring.EngineMetrics
	uptime     UptimePinger
	uptimeURL  string
	batch      int
	logger     *logger.Logger
}

// NewExpirySweep builds the sweep. metrics and uptime may be nil.
func NewExpirySweep(
	controller controller.IController,
	db *gorm.DB,
	orders order.IStore,
	metrics *monitoring.EngineMetrics,
	uptime UptimePinger,
	cfg *config.AppConfig,
	logger *logger.Logger,
) *ExpirySweep {
	return &ExpirySweep{
		controller: controller,
		db:         db,
		orders:     orders,
		metrics:    metrics,
		uptime:     uptime,
		uptimeURL:  cfg.Webhook.UptimeURL,
		batch:      cfg.Jobs.ExpirySweepBatch,
		logger:     logger,
	}
}

// Run expires one batch. The returned metadata carries the number of
// orders expired and the open orders left.
func (s *ExpirySweep) Run(ctx context.Context) (map[string]interface{}, error) {
	expired, err := s.controller.ExpireDueOrders(ctx, s.batch)
	metadata := map[string]interface{}{"expired": expired}
	if err != nil {
		s.logger.Error("[ExpirySweep][ExpireDueOrders]", map[string]string{
			"expired": strconv.Itoa(expired),
			"error":   err.Error(),
		})
		return metadata, err
	}

	counts, err := s.orders.CountByStatus(s.db.WithContext(ctx))
	if err != nil {
		s.logger.Error("[ExpirySweep][CountByStatus]", map[string]string{
			"error": err.Error(),
		})
		return metadata, err
	}
	metadata["open_orders"] = counts[model.OrderStatusOpen]
	s.metrics.SetOrderCounts(counts)

	if expired > 0 {
		s.logger.Info("[ExpirySweep] expired overdue orders", map[string]string{
			"expired": strconv.Itoa(expired),
		})
	}

	if s.uptime != nil {
		s.uptime.CallUptimeWebhook(ctx, s.uptimeURL)
	}
	return metadata, nil
}

// Schedule registers the sweep on c under the expiry sweep job name.
func Schedule(c *cron.Cron, sweep *ExpirySweep, jsm *monitoring.JobStatusManager, cfg config.JobsConfig, logger *logger.Logger) (*monitoring.InstrumentedJob, error) {
	timeout := cfg.ExpirySweepTimeout
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	j := monitoring.NewInstrumentedJob(monitoring.JobOrderExpirySweep, sweep.Run, jsm, logger, timeout)
	if _, err := c.AddJob(cfg.ExpirySweepSpec, j); err != nil {
		return nil, err
	}
	return j, nil
}
