package order

import "github.com/gin-gonic/gin"

type IHandler interface {
	CreateOrder(c *gin.Context)
	ComputeOrderHash(c *gin.Context)
	ListOrders(c *gin.Context)
	GetOrder(c *gin.Context)
	MatchOrder(c *gin.Context)
	CompleteOrder(c *gin.Context)
	RefundOrder(c *gin.Context)
	ExpireOrder(c *gin.Context)
	GetEscrows(c *gin.Context)
	IsOrderMatchable(c *gin.Context)
	EstimateOrderCosts(c *gin.Context)
	GetOrderEvents(c *gin.Context)
	GetSecret(c *gin.Context)
}
