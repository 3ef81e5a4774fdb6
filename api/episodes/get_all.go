package episodes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/internal/services/episodes"
)

// GetAll returns one page of the caller's episodes
// @Summary      List episodes
// @Description  The caller's episodes, newest first
// @Tags         episodes
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query int false "Page size (1-100)" default(20)
// @Param        offset query int false "Offset" default(0)
// @Success      200 {object} types.EpisodesResponse
// @Failure      401 {object} types.ErrorResponse
// @Router       /api/v1/episodes [get]
func GetAll(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}

		limit := types.QueryInt(c, "limit", episodes.DefaultPageSize)
		offset := types.QueryInt(c, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		eps, total, err := deps.Episodes.List(c.Request.Context(), userID, limit, offset)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		items := types.FromEpisodes(c.Request.Context(), eps, deps.Store, deps.Logger())
		c.JSON(http.StatusOK, types.EpisodesResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Episodes:     items,
			Count:        len(items),
			Total:        total,
			Offset:       offset,
		})
	}
}
