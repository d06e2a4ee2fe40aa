package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/dwarvesf/fusion-bridge/internal/authority"
	"github.com/dwarvesf/fusion-bridge/internal/chain"
	"github.com/dwarvesf/fusion-bridge/internal/controller"
	"github.com/dwarvesf/fusion-bridge/internal/handler"
	"github.com/dwarvesf/fusion-bridge/internal/job"
	"github.com/dwarvesf/fusion-bridge/internal/ledger"
	"github.com/dwarvesf/fusion-bridge/internal/locker"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/registry"
	"github.com/dwarvesf/fusion-bridge/internal/store"
	transport "github.com/dwarvesf/fusion-bridge/internal/transport/http"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
	"github.com/dwarvesf/fusion-bridge/internal/utils/webhook"
)

const shutdownTimeout = 15 * time.Second

func Init() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	repo := store.NewDBRepo(appConfig, logger)
	defer repo.Close()
	db := repo.DB()
	s := store.New()

	metrics := monitoring.NewMetrics()

	jobStatusManager := monitoring.NewJobStatusManager(logger, metrics.Jobs)
	defer jobStatusManager.Stop()

	auth, err := authority.New(db, s.Resolver, appConfig.Registry.Owner, logger)
	if err != nil {
		logger.Fatal("[Init][authority.New] invalid registry owner", map[string]string{
			"error": err.Error(),
		})
	}
	if err := authority.Seed(context.Background(), auth, appConfig.Registry.Resolvers); err != nil {
		logger.Fatal("[Init][authority.Seed] failed to seed resolvers", map[string]string{
			"error": err.Error(),
		})
	}

	reg := registry.New(auth, logger)
	adapters, err := chain.Catalogue(appConfig.Chains)
	if err != nil {
		logger.Fatal("[Init][chain.Catalogue] invalid chain config", map[string]string{
			"error": err.Error(),
		})
	}
	if err := reg.RegisterAll(auth.Owner(), adapters); err != nil {
		logger.Fatal("[Init][RegisterAll] failed to register chains", map[string]string{
			"error": err.Error(),
		})
	}

	var (
		redisClient *redis.Client
		lock        locker.ILocker = locker.NewLocal()
	)
	if appConfig.Redis.URL != "" {
		redisClient, err = locker.Dial(appConfig.Redis.URL, appConfig.Redis.Password)
		if err != nil {
			logger.Fatal("[Init][locker.Dial] failed to connect to redis", map[string]string{
				"error": err.Error(),
			})
		}
		defer redisClient.Close()
		lock = locker.NewRedis(redisClient, appConfig.Redis.LockTTL, logger)
	}

	redisBreaker, err := monitoring.NewBreaker(monitoring.APIRedis, monitoring.CircuitBreakerConfigs[monitoring.APIRedis], metrics.External, logger)
	if err != nil {
		logger.Fatal("[Init][NewBreaker] invalid redis breaker config", map[string]string{
			"error": err.Error(),
		})
	}
	webhookBreaker, err := monitoring.NewBreaker(monitoring.APIEventWebhook, monitoring.CircuitBreakerConfigs[monitoring.APIEventWebhook], metrics.External, logger)
	if err != nil {
		logger.Fatal("[Init][NewBreaker] invalid webhook breaker config", map[string]string{
			"error": err.Error(),
		})
	}
	notifier := webhook.New(appConfig.Webhook, webhookBreaker, logger)
	defer notifier.Close()

	l := ledger.New(s.Balance)
	ctrl := controller.New(db, s, reg, auth, l, lock, notifier, metrics.Engine, logger, appConfig)

	c := cron.New()
	sweep := job.NewExpirySweep(ctrl, db, s.Order, metrics.Engine, notifier, appConfig, logger)
	if _, err := job.Schedule(c, sweep, jobStatusManager, appConfig.Jobs, logger); err != nil {
		logger.Fatal("[Init][job.Schedule] invalid expiry sweep schedule", map[string]string{
			"spec":  appConfig.Jobs.ExpirySweepSpec,
			"error": err.Error(),
		})
	}
	c.Start()
	// a running sweep may still publish, so wait for it before the notifier closes
	defer func() { <-c.Stop().Done() }()

	h := handler.New(appConfig, logger, handler.Deps{
		DB:               db,
		Store:            s,
		Controller:       ctrl,
		Registry:         reg,
		Authority:        auth,
		Ledger:           l,
		Redis:            redisClient,
		WebhookBreaker:   webhookBreaker,
		JobStatusManager: jobStatusManager,
		Gatherer:         metrics.Registry,
	})
	idempotency := transport.NewIdempotency(redisClient, redisBreaker, metrics.HTTP, logger, appConfig.ApiServer.IdempotencyTTL)

	srv := &http.Server{
		Addr:    appConfig.ApiServer.Addr,
		Handler: transport.NewHttpServer(appConfig, logger, h, metrics.HTTP, idempotency),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("[Init] api server listening", map[string]string{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("[Init][ListenAndServe] api server stopped", map[string]string{
				"error": err.Error(),
			})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[Init] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("[Init][Shutdown] graceful shutdown failed", map[string]string{
			"error": err.Error(),
		})
	}
}
