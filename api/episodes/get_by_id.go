package episodes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// GetByID returns one of the caller's episodes
// @Summary      Get episode
// @Description  Episode details with resolved cover and audio URLs, transcript and alignments
// @Tags         episodes
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Episode ID"
// @Success      200 {object} types.SingleEpisodeResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/episodes/{id} [get]
func GetByID(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		ep, err := deps.Episodes.GetForOwner(c.Request.Context(), userID, id)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		c.JSON(http.StatusOK, types.SingleEpisodeResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Episode:      types.FromEpisode(c.Request.Context(), ep, deps.Store, deps.Logger(), true),
		})
	}
}
