package chain

import "github.com/gin-gonic/gin"

type IHandler interface {
	ListChains(c *gin.Context)
	SupportedChainIDs(c *gin.Context)
	GetChainInfo(c *gin.Context)
	ValidateAddress(c *gin.Context)
	ValidateOrderParams(c *gin.Context)
	EstimateExecutionCost(c *gin.Context)
	MinSafetyDeposit(c *gin.Context)
	SupportsFeature(c *gin.Context)
	GenerateHTLCScript(c *gin.Context)

	// owner only
	RegisterChain(c *gin.Context)
	ActivateChain(c *gin.Context)
	DeactivateChain(c *gin.Context)
	UpdateChainMetadata(c *gin.Context)
}
