package api

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	authapi "github.com/killallgit/audiolingu-api/api/auth"
	"github.com/killallgit/audiolingu-api/api/batch"
	"github.com/killallgit/audiolingu-api/api/episodes"
	"github.com/killallgit/audiolingu-api/api/health"
	"github.com/killallgit/audiolingu-api/api/jobs"
	"github.com/killallgit/audiolingu-api/api/middleware"
	"github.com/killallgit/audiolingu-api/api/quizzes"
	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/api/version"
	"github.com/killallgit/audiolingu-api/api/voices"
	_ "github.com/killallgit/audiolingu-api/docs/swagger"
	"github.com/killallgit/audiolingu-api/pkg/config"
)

// RouteOptions carries what route registration needs beyond the handler
// dependencies
type RouteOptions struct {
	Auth      *authapi.Handler
	RateLimit config.RateLimitConfig
	QuizCache middleware.CacheConfig
	// MediaRoute and MediaDir serve the filesystem object store
	MediaRoute string
	MediaDir   string
}

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, opts RouteOptions, rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once) error {
	if deps == nil {
		return errors.New("dependencies are required")
	}
	if opts.Auth == nil {
		return errors.New("auth handler is required")
	}

	// Public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)
	version.RegisterRoutes(engine, deps)

	engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	engine.Group("/docs").GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if opts.MediaDir != "" {
		route := "/" + strings.Trim(opts.MediaRoute, "/")
		if route == "/" {
			route = "/media"
		}
		engine.Static(route, opts.MediaDir)
	}

	engine.NoRoute(NotFoundHandler())

	// Internal trigger for an external scheduler
	internal := engine.Group("/internal", InternalToken(deps.InternalToken))
	batch.RegisterRoutes(internal, deps)

	v1 := engine.Group("/api/v1")
	if opts.RateLimit.Enabled {
		v1.Use(PerClientRateLimit(rateLimiters, cleanupStop, cleanupInitialized, opts.RateLimit.RPS, opts.RateLimit.Burst))
	}

	// Shared quizzes are readable without an account
	quizzes.RegisterRoutes(v1.Group("/quizzes"), deps, middleware.CacheMiddleware(opts.QuizCache))

	authed := v1.Group("")
	authed.Use(opts.Auth.AuthMiddleware())
	authapi.RegisterRoutes(authed, opts.Auth)
	episodes.RegisterRoutes(authed.Group("/episodes"), deps)
	jobs.RegisterRoutes(authed.Group("/jobs"), deps)
	voices.RegisterRoutes(authed.Group("/voices"), deps)

	return nil
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  types.StatusError,
			"message": "The requested endpoint was not found",
			"path":    c.Request.URL.Path,
		})
	}
}
