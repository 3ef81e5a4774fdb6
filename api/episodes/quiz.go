package episodes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// PostQuiz writes a new quiz from the episode transcript
// @Summary      Generate quiz
// @Description  Generates a comprehension quiz for one of the caller's episodes. The quiz gets a public id that can be shared.
// @Tags         quizzes
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Episode ID"
// @Success      201 {object} types.QuizResponse
// @Failure      400 {object} types.ErrorResponse "Episode has no transcript"
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      502 {object} types.ErrorResponse "Quiz writer returned an invalid quiz"
// @Router       /api/v1/episodes/{id}/quiz [post]
func PostQuiz(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		if deps.Quizzes == nil {
			types.SendServiceUnavailable(c, "Quiz generation")
			return
		}

		quiz, err := deps.Quizzes.GenerateForEpisode(c.Request.Context(), userID, id)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		c.JSON(http.StatusCreated, types.QuizResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Quiz created"},
			Quiz:         quiz,
		})
	}
}

// GetQuiz returns the newest quiz for one of the caller's episodes
// @Summary      Latest quiz for episode
// @Tags         quizzes
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Episode ID"
// @Success      200 {object} types.QuizResponse
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/episodes/{id}/quiz [get]
func GetQuiz(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}
		if deps.Quizzes == nil {
			types.SendServiceUnavailable(c, "Quiz generation")
			return
		}

		quiz, err := deps.Quizzes.LatestForEpisode(c.Request.Context(), userID, id)
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
