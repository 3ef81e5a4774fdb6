package version

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/audiolingu-api/api/types"
)

func TestGet(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name            string
		deps            *types.Dependencies
		path            string
		expectedVersion string
	}{
		{name: "root with version", deps: &types.Dependencies{Version: "0.4.0"}, path: "/", expectedVersion: "0.4.0"},
		{name: "version path", deps: &types.Dependencies{Version: "0.4.0"}, path: "/version", expectedVersion: "0.4.0"},
		{name: "unset version", deps: &types.Dependencies{}, path: "/version", expectedVersion: "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			RegisterRoutes(router, tt.deps)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, "Audiolingu API", response["name"])
			assert.Equal(t, tt.expectedVersion, response["version"])
			assert.Equal(t, "running", response["status"])
		})
	}
}
