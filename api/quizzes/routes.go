package quizzes

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// RegisterRoutes registers the public quiz routes. Extra middleware (the
// response cache) runs before the handler.
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies, middleware ...gin.HandlerFunc) {
	handlers := append(middleware, GetByPublicID(deps))
	router.GET("/:publicId", handlers...)
}
