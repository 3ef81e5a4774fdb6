package quizzes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// GetByPublicID returns a shared quiz
// @Summary      Get shared quiz
// @Description  Reads a quiz by its public id. No authentication.
// @Tags         quizzes
// @Produce      json
// @Param        publicId path string true "Public quiz id"
// @Success      200 {object} types.QuizResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/quizzes/{publicId} [get]
func GetByPublicID(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		publicID := strings.TrimSpace(c.Param("publicId"))
		if publicID == "" {
			types.SendNotFound(c, "Quiz not found")
			return
		}
		if deps.Quizzes == nil {
			types.SendServiceUnavailable(c, "Quiz generation")
			return
		}

		quiz, err := deps.Quizzes.GetByPublicID(c.Request.Context(), publicID)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		c.JSON(http.StatusOK, types.QuizResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Quiz:         quiz,
		})
	}
}
