package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/authority"
	"github.com/dwarvesf/fusion-bridge/internal/controller"
	"github.com/dwarvesf/fusion-bridge/internal/handler/account"
	"github.com/dwarvesf/fusion-bridge/internal/handler/chain"
	"github.com/dwarvesf/fusion-bridge/internal/handler/health"
	"github.com/dwarvesf/fusion-bridge/internal/handler/metrics"
	"github.com/dwarvesf/fusion-bridge/internal/handler/order"
	"github.com/dwarvesf/fusion-bridge/internal/handler/resolver"
	"github.com/dwarvesf/fusion-bridge/internal/ledger"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/registry"
	"github.com/dwarvesf/fusion-bridge/internal/store"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

type Handler struct {
	OrderHandler    order.IHandler
	ChainHandler    chain.IHandler
	ResolverHandler resolver.IHandler
	AccountHandler  account.IHandler
	HealthHandler   health.IHealthHandler
	MetricsHandler  *metrics.MetricsHandler
}

// Deps is everything the HTTP handlers are built from. Redis and
// WebhookBreaker are optional.
type Deps struct {
	DB               *gorm.DB
	Store            *store.Store
	Controller       controller.IController
	Registry         *registry.Registry
	Authority        authority.IAuthority
	Ledger           ledger.ILedger
	Redis            *redis.Client
	WebhookBreaker   *monitoring.Breaker
	JobStatusManager *monitoring.JobStatusManager
	Gatherer         prometheus.Gatherer
}

func New(appConfig *config.AppConfig, logger *logger.Logger, deps Deps) *Handler {
	return &Handler{
		OrderHandler:    order.New(deps.Controller, logger),
		ChainHandler:    chain.New(deps.Registry, logger),
		ResolverHandler: resolver.New(deps.Authority, logger),
		AccountHandler:  account.New(deps.DB, deps.Ledger, deps.Store.Balance, deps.Authority, logger),
		HealthHandler:   health.New(appConfig, logger, deps.DB, deps.Redis, deps.WebhookBreaker, deps.JobStatusManager),
		MetricsHandler:  metrics.NewMetricsHandler(deps.Gatherer, logger),
	}
}
