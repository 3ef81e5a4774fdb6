package jobs

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// RegisterRoutes registers job status routes on an authenticated group
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("/:id", GetByID(deps))
}
