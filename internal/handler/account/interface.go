package account

import "github.com/gin-gonic/gin"

type IHandler interface {
	ListBalances(c *gin.Context)
	GetBalance(c *gin.Context)
	Deposit(c *gin.Context)
	Withdraw(c *gin.Context)
}
