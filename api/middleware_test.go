package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/killallgit/audiolingu-api/pkg/config"
)

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		security       config.SecurityConfig
		method         string
		origin         string
		expectedStatus int
		expectedOrigin string
	}{
		{
			name:           "preflight with any origin",
			method:         http.MethodOptions,
			origin:         "https://example.com",
			expectedStatus: http.StatusNoContent,
			expectedOrigin: "*",
		},
		{
			name:           "allowed origin",
			security:       config.SecurityConfig{CORSOrigins: []string{"https://app.example.com"}},
			method:         http.MethodGet,
			origin:         "https://app.example.com",
			expectedStatus: http.StatusOK,
			expectedOrigin: "https://app.example.com",
		},
		{
			name:           "disallowed origin",
			security:       config.SecurityConfig{CORSOrigins: []string{"https://app.example.com"}},
			method:         http.MethodGet,
			origin:         "https://evil.example.com",
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "wildcard in list",
			security:       config.SecurityConfig{CORSOrigins: []string{"https://a.example.com", "*"}},
			method:         http.MethodGet,
			origin:         "https://b.example.com",
			expectedStatus: http.StatusOK,
			expectedOrigin: "*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			_, router := gin.CreateTestContext(w)
			router.Use(CORS(tt.security))
			router.Any("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRequestSizeLimitWithSize(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		bodySize       int
		expectedStatus int
	}{
		{name: "small request under limit", bodySize: 100, expectedStatus: http.StatusOK},
		{name: "request at limit", bodySize: 1024, expectedStatus: http.StatusOK},
		{name: "request over limit", bodySize: 1025, expectedStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			_, router := gin.CreateTestContext(w)
			router.Use(RequestSizeLimitWithSize(1024))
			router.POST("/test", func(c *gin.Context) {
				body, err := io.ReadAll(c.Request.Body)
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					c.Status(http.StatusRequestEntityTooLarge)
					return
				}
				c.JSON(http.StatusOK, gin.H{"received": len(body)})
			})

			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(strings.Repeat("a", tt.bodySize)))
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestPerClientRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name              string
		requestCount      int
		requestsPerSecond float64
		burstSize         int
		expectBlocked     int
	}{
		{name: "requests under rate limit", requestCount: 3, requestsPerSecond: 10, burstSize: 5},
		{name: "burst requests", requestCount: 6, requestsPerSecond: 0.5, burstSize: 3, expectBlocked: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rateLimiters := &sync.Map{}
			cleanupStop := make(chan struct{})
			defer close(cleanupStop)

			_, router := gin.CreateTestContext(httptest.NewRecorder())
			router.Use(PerClientRateLimit(rateLimiters, cleanupStop, &sync.Once{}, tt.requestsPerSecond, tt.burstSize))
			router.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			blocked := 0
			for i := 0; i < tt.requestCount; i++ {
				w := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				req.RemoteAddr = "127.0.0.1:12345"
				router.ServeHTTP(w, req)
				if w.Code == http.StatusTooManyRequests {
					blocked++
				}
			}
			assert.Equal(t, tt.expectBlocked, blocked)
		})
	}
}

func TestPerClientRateLimit_DifferentClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rateLimiters := &sync.Map{}
	cleanupStop := make(chan struct{})
	defer close(cleanupStop)

	_, router := gin.CreateTestContext(httptest.NewRecorder())
	router.Use(PerClientRateLimit(rateLimiters, cleanupStop, &sync.Once{}, 0.1, 1))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(addr string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = addr
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1"))
}

func TestPruneRateLimiters(t *testing.T) {
	rateLimiters := &sync.Map{}
	stale := newClientLimiter(1, 1)
	stale.lastSeen.Store(time.Now().Add(-time.Hour).UnixNano())
	rateLimiters.Store("stale", stale)
	rateLimiters.Store("fresh", newClientLimiter(1, 1))

	pruneRateLimiters(rateLimiters, time.Now(), 10*time.Minute)

	_, ok := rateLimiters.Load("stale")
	assert.False(t, ok)
	_, ok = rateLimiters.Load("fresh")
	assert.True(t, ok)
}

func TestInternalToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		token    string
		header   string
		expected int
	}{
		{name: "disabled", token: "", header: "x", expected: http.StatusServiceUnavailable},
		{name: "missing header", token: "s3cret", expected: http.StatusUnauthorized},
		{name: "wrong header", token: "s3cret", header: "nope", expected: http.StatusUnauthorized},
		{name: "valid", token: "s3cret", header: "s3cret", expected: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			_, router := gin.CreateTestContext(w)
			router.POST("/internal", InternalToken(tt.token), func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodPost, "/internal", nil)
			if tt.header != "" {
				req.Header.Set(InternalTokenHeader, tt.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}
