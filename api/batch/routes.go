package batch

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// RegisterRoutes registers the internal batch trigger. The group must be
// guarded by the internal token middleware.
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.POST("/batch/daily", PostDaily(deps))
}
