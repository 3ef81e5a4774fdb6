package voices

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/internal/services/tts"
)

// Search looks up voices in the shared voice library
// @Summary      Search voices
// @Description  Voices for a language, optionally filtered. Results are cached.
// @Tags         voices
// @Security     BearerAuth
// @Produce      json
// @Param        language query string true  "Language code" example(es)
// @Param        gender   query string false "male, female or neutral"
// @Param        age      query string false "young, middle_aged or old"
// @Param        category query string false "professional, famous or high_quality"
// @Success      200 {object} types.VoicesResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      502 {object} types.ErrorResponse
// @Router       /api/v1/voices [get]
func Search(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Voices == nil {
			types.SendServiceUnavailable(c, "Voice search")
			return
		}

		q := tts.VoiceQuery{
			Language: strings.ToLower(strings.TrimSpace(c.Query("language"))),
			Gender:   strings.ToLower(strings.TrimSpace(c.Query("gender"))),
			Age:      strings.ToLower(strings.TrimSpace(c.Query("age"))),
			Category: strings.ToLower(strings.TrimSpace(c.Query("category"))),
		}
		if err := q.Validate(); err != nil {
			types.SendBadRequest(c, err.Error())
			return
		}

		result, err := deps.Voices.SearchVoices(c.Request.Context(), q)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		voices := result.Voices
		if voices == nil {
			voices = []tts.Voice{}
		}
		c.JSON(http.StatusOK, types.VoicesResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Voices:       voices,
			HasMore:      result.HasMore,
		})
	}
}
