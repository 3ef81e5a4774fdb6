package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/pkg/config"
)

// Server represents the HTTP server
type Server struct {
	engine             *gin.Engine
	httpServer         *http.Server
	security           config.SecurityConfig
	routes             RouteOptions
	rateLimiters       *sync.Map
	cleanupInitialized sync.Once
	cleanupStop        chan struct{}
	stopOnce           sync.Once

	// Dependencies for handlers
	dependencies *types.Dependencies
}

// NewServer creates a new HTTP server from the server config section
func NewServer(address string, cfg config.ServerConfig) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	// Quiz generation runs inside the request
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}
	maxHeader := cfg.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = 1 << 20
	}

	return &Server{
		engine:       engine,
		rateLimiters: &sync.Map{},
		cleanupStop:  make(chan struct{}),
		httpServer: &http.Server{
			Addr:              address,
			Handler:           engine,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    maxHeader,
		},
	}
}

// SetDependencies sets all handler dependencies
func (s *Server) SetDependencies(deps *types.Dependencies) {
	s.dependencies = deps
}

// SetSecurity sets the CORS policy
func (s *Server) SetSecurity(sec config.SecurityConfig) {
	s.security = sec
}

// SetRouteOptions sets auth, rate limiting, caching and media serving
func (s *Server) SetRouteOptions(opts RouteOptions) {
	s.routes = opts
}

// Engine returns the Gin engine for testing
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Initialize sets up middleware and routes
func (s *Server) Initialize() error {
	s.setupMiddleware()
	return RegisterRoutes(s.engine, s.dependencies, s.routes, s.rateLimiters, s.cleanupStop, &s.cleanupInitialized)
}

// setupMiddleware configures global middleware
func (s *Server) setupMiddleware() {
	s.engine.Use(RequestLogger(s.dependencies.Logger()))
	s.engine.Use(CORS(s.security))
	s.engine.Use(RequestSizeLimit())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.cleanupStop) })
	return s.httpServer.Shutdown(ctx)
}
