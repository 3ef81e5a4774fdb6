package episodes

import (
	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// RegisterRoutes registers episode routes on an authenticated group
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	// POST /api/v1/episodes/generate - Start a generation run
	router.POST("/generate", PostGenerate(deps))

	// GET /api/v1/episodes - Caller's episodes, paginated
	router.GET("", GetAll(deps))

	// GET /api/v1/episodes/recent - Caller's newest episodes
	router.GET("/recent", GetRecent(deps))

	// GET /api/v1/episodes/:id - Episode with media URLs and alignments
	router.GET("/:id", GetByID(deps))

	router.PUT("/:id/feedback", PutFeedback(deps))
	router.PUT("/:id/progress", PutProgress(deps))

	// Quizzes are generated on demand
	router.POST("/:id/quiz", PostQuiz(deps))
	router.GET("/:id/quiz", GetQuiz(deps))
}
