package resolver

import "github.com/gin-gonic/gin"

type IHandler interface {
	ListResolvers(c *gin.Context)
	IsAuthorized(c *gin.Context)
	AuthorizeResolver(c *gin.Context)
	DeauthorizeResolver(c *gin.Context)
	GetOwner(c *gin.Context)
	TransferOwnership(c *gin.Context)
}
