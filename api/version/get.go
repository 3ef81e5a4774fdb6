package version

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

const (
	serviceName        = "Audiolingu API"
	serviceDescription = "Personalized language-learning podcasts"
)

// Get handles version requests
// @Summary      Service version
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /version [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		version := "dev"
		if deps != nil && deps.Version != "" {
			version = deps.Version
		}
		c.JSON(http.StatusOK, gin.H{
			"name":        serviceName,
			"version":     version,
			"description": serviceDescription,
			"status":      "running",
		})
	}
}
