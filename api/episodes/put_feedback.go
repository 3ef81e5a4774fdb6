package episodes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// PutFeedback rates one of the caller's episodes
// @Summary      Rate episode
// @Description  Stores a good/bad rating with an optional comment and schedules feedback analysis
// @Tags         episodes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path int                   true "Episode ID"
// @Param        feedback body types.FeedbackRequest true "Rating"
// @Success      200 {object} types.SingleEpisodeResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      403 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      409 {object} types.ErrorResponse "Episode not ready"
// @Router       /api/v1/episodes/{id}/feedback [put]
func PutFeedback(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}
		id, ok := types.ParseUintParam(c, "id")
		if !ok {
			return
		}

		var req types.FeedbackRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		ep, err := deps.Episodes.SetFeedback(c.Request.Context(), userID, id, req.Feedback, req.Comment)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		c.JSON(http.StatusOK, types.SingleEpisodeResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Feedback saved"},
			Episode:      types.FromEpisode(c.Request.Context(), ep, deps.Store, deps.Logger(), false),
		})
	}
}
