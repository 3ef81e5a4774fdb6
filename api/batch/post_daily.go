package batch

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// PostDaily enqueues a generation job for every user who opted into daily episodes
// @Summary      Trigger daily batch
// @Description  Called by an external scheduler. Users with a run already queued are skipped.
// @Tags         internal
// @Produce      json
// @Param        X-Internal-Token header string true "Internal token"
// @Success      202 {object} types.BatchResponse
// @Failure      401 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /internal/batch/daily [post]
func PostDaily(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Generation == nil {
			types.SendServiceUnavailable(c, "Generation")
			return
		}

		result, err := deps.Generation.EnqueueDaily(c.Request.Context())
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		deps.Logger().Info("Daily batch triggered",
			"eligible", result.Eligible, "enqueued", result.Enqueued, "skipped", result.Skipped)
		c.JSON(http.StatusAccepted, types.BatchResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Daily batch enqueued"},
			Eligible:     result.Eligible,
			Enqueued:     result.Enqueued,
			Skipped:      result.Skipped,
		})
	}
}
