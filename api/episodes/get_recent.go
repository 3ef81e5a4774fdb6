package episodes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/internal/services/episodes"
)

// GetRecent returns the caller's newest episodes
// @Summary      Recent episodes
// @Description  The caller's most recent episodes
// @Tags         episodes
// @Security     BearerAuth
// @Produce      json
// @Param        limit query int false "Number of episodes (1-20)" minimum(1) maximum(20) default(5)
// @Success      200 {object} types.EpisodesResponse
// @Failure      401 {object} types.ErrorResponse
// @Router       /api/v1/episodes/recent [get]
func GetRecent(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := types.RequireUserID(c)
		if !ok {
			return
		}

		limit := types.QueryInt(c, "limit", episodes.DefaultRecentLimit)
		eps, err := deps.Episodes.Recent(c.Request.Context(), userID, limit)
		if err != nil {
			types.SendError(c, deps.Logger(), err)
			return
		}

		items := types.FromEpisodes(c.Request.Context(), eps, deps.Store, deps.Logger())
		c.JSON(http.StatusOK, types.EpisodesResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Episodes:     items,
			Count:        len(items),
		})
	}
}
