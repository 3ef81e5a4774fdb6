package voices

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// RegisterRoutes registers voice search on an authenticated group
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", Search(deps))
}
