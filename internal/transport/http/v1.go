package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/fusion-bridge/internal/handler"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler, idempotent gin.HandlerFunc) {
	// health check
	r.GET("/healthz", h.HealthHandler.Basic)

	v1 := r.Group("/api/v1")

	health := v1.Group("/health")
	{
		health.GET("/db", h.HealthHandler.Database)
		health.GET("/external", h.HealthHandler.External)
		health.GET("/jobs", h.HealthHandler.Jobs)
	}

	orders := v1.Group("/orders", idempotent)
	{
		orders.POST("", h.OrderHandler.CreateOrder)
		orders.GET("", h.OrderHandler.ListOrders)
		orders.POST("/hash", h.OrderHandler.ComputeOrderHash)
		orders.GET("/:order_hash", h.OrderHandler.GetOrder)
		orders.POST("/:order_hash/match", h.OrderHandler.MatchOrder)
		orders.POST("/:order_hash/complete", h.OrderHandler.CompleteOrder)
		orders.POST("/:order_hash/refund", h.OrderHandler.RefundOrder)
		orders.POST("/:order_hash/expire", h.OrderHandler.ExpireOrder)
		orders.GET("/:order_hash/escrows", h.OrderHandler.GetEscrows)
		orders.GET("/:order_hash/matchable", h.OrderHandler.IsOrderMatchable)
		orders.GET("/:order_hash/costs", h.OrderHandler.EstimateOrderCosts)
		orders.GET("/:order_hash/events", h.OrderHandler.GetOrderEvents)
		orders.GET("/:order_hash/secret", h.OrderHandler.GetSecret)
	}

	chains := v1.Group("/chains")
	{
		chains.GET("", h.ChainHandler.ListChains)
		chains.GET("/supported", h.ChainHandler.SupportedChainIDs)
		chains.GET("/:chain_id", h.ChainHandler.GetChainInfo)
		chains.POST("/:chain_id/validate-address", h.ChainHandler.ValidateAddress)
		chains.POST("/:chain_id/validate-params", h.ChainHandler.ValidateOrderParams)
		chains.POST("/:chain_id/estimate", h.ChainHandler.EstimateExecutionCost)
		chains.GET("/:chain_id/min-deposit", h.ChainHandler.MinSafetyDeposit)
		chains.GET("/:chain_id/features/:feature", h.ChainHandler.SupportsFeature)
		chains.POST("/:chain_id/htlc-script", h.ChainHandler.GenerateHTLCScript)

		chains.POST("", h.ChainHandler.RegisterChain)
		chains.POST("/:chain_id/activate", h.ChainHandler.ActivateChain)
		chains.POST("/:chain_id/deactivate", h.ChainHandler.DeactivateChain)
		chains.PUT("/:chain_id/metadata", h.ChainHandler.UpdateChainMetadata)
	}

	resolvers := v1.Group("/resolvers")
	{
		resolvers.GET("", h.ResolverHandler.ListResolvers)
		resolvers.GET("/:address", h.ResolverHandler.IsAuthorized)
		resolvers.POST("", h.ResolverHandler.AuthorizeResolver)
		resolvers.DELETE("/:address", h.ResolverHandler.DeauthorizeResolver)
	}
	v1.GET("/owner", h.ResolverHandler.GetOwner)
	v1.PUT("/owner", h.ResolverHandler.TransferOwnership)

	accounts := v1.Group("/accounts/:account", idempotent)
	{
		accounts.GET("/balances", h.AccountHandler.ListBalances)
		accounts.GET("/balances/:asset", h.AccountHandler.GetBalance)
		accounts.POST("/deposits", h.AccountHandler.Deposit)
		accounts.POST("/withdrawals", h.AccountHandler.Withdraw)
	}
}
