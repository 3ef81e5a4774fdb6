package jobs

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

// GetByID reports the status of one of the caller's generation jobs
// @Summary      Job status
// @Description  Status, progress and result of a generation job started by the caller
// @Tags         jobs
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Job ID"
// @Success      200 {object} types.JobResponse
// @Failure      404 {object} types.ErrorResponse
// @Router       /api/v1/jobs/{id} [get]
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

		job, err := deps.JobService.GetJobForUser(c.Request.Context(), userID, id)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		c.JSON(http.StatusOK, types.FromJob(job))
	}
}
