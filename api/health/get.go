package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
)

const checkTimeout = 2 * time.Second

// Get handles health check requests
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Failure      503 {object} map[string]interface{}
// @Router       /health [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		dbStatus, healthy := getDatabaseStatus(ctx, deps)
		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":    status,
			"version":   deps.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"database":  dbStatus,
		})
	}
}

// getDatabaseStatus reports the database state. A missing database is not
// a failure so the API can run without one in tests.
func getDatabaseStatus(ctx context.Context, deps *types.Dependencies) (gin.H, bool) {
	if deps == nil || deps.DB == nil || deps.DB.DB == nil {
		return gin.H{"status": "not configured", "connected": false}, true
	}
	if err := deps.DB.HealthCheck(ctx); err != nil {
		return gin.H{"status": "error", "connected": false, "error": err.Error()}, false
	}
	return gin.H{"status": "connected", "connected": true}, true
}
