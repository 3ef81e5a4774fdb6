package episodes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// PutProgress records the caller's listening position
// @Summary      Save listening progress
// @Tags         episodes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path int                   true "Episode ID"
// @Param        progress body types.ProgressRequest true "Position"
// @Success      200 {object} types.ProgressResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/episodes/{id}/progress [put]
func PutProgress(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		var req types.ProgressRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		p, err := deps.Episodes.SetProgress(c.Request.Context(), userID, id, *req.PositionSeconds, req.Completed)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		c.JSON(http.StatusOK, types.ProgressResponse{
			BaseResponse:    types.BaseResponse{Status: types.StatusOK},
			EpisodeID:       p.EpisodeID,
			PositionSeconds: p.PositionSeconds,
			Completed:       p.Completed,
		})
	}
}
