package episodes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// PostGenerate queues a generation run for the caller
// @Summary      Generate an episode
// @Description  Queues a personalized episode for the caller. A run that is already queued or in progress is returned instead of starting another.
// @Tags         episodes
// @Security     BearerAuth
// @Produce      json
// @Success      202 {object} types.JobResponse
// @Failure      400 {object} types.ErrorResponse "Learning profile incomplete"
// @Failure      401 {object} types.ErrorResponse
// @Router       /api/v1/episodes/generate [post]
func PostGenerate(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}
		if deps.Generation == nil {
			types.SendServiceUnavailable(c, "Generation")
			return
		}

		snap, err := deps.Users.LoadSnapshot(c.Request.Context(), userID)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}
		if err := snap.Validate(); err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		job, err := deps.Generation.EnqueueGeneration(c.Request.Context(), userID)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		resp := types.FromJob(job)
		resp.Message = "Episode generation queued"
		c.JSON(http.StatusAccepted, resp)
	}
}
