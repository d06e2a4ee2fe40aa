package health

import "github.com/gin-gonic/gin"

// IHealthHandler serves the liveness probe and the per-dependency checks.
type IHealthHandler interface {
	// Basic is the liveness probe; it never touches a dependency.
	Basic(c *gin.Context)
	// Database pings the order store and reports pool usage.
	Database(c *gin.Context)
	// External covers redis and the event webhook circuit.
	External(c *gin.Context)
	// Jobs reports the expiry sweep.
	Jobs(c *gin.Context)
}
