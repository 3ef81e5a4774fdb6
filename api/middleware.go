package api

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/killallgit/audiolingu-api/api/types"
	"github.com/killallgit/audiolingu-api/pkg/config"
	apperrors "github.com/killallgit/audiolingu-api/pkg/errors"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// InternalTokenHeader carries the shared secret for internal routes
const InternalTokenHeader = "X-Internal-Token"

// clientLimiter holds a rate limiter and its last accessed time
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// CORS allows the configured origins. No origins means any origin without
// credentials.
func CORS(sec config.SecurityConfig) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(sec.CORSMethods) > 0 {
		cfg.AllowMethods = sec.CORSMethods
	}
	if len(sec.CORSHeaders) > 0 {
		cfg.AllowHeaders = sec.CORSHeaders
	}

	origins := make([]string, 0, len(sec.CORSOrigins))
	for _, o := range sec.CORSOrigins {
		if o == "*" {
			origins = nil
			break
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func RequestSizeLimit() gin.HandlerFunc {
	return RequestSizeLimitWithSize(1024 * 1024)
}

func RequestSizeLimitWithSize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost ||
			c.Request.Method == http.MethodPut ||
			c.Request.Method == http.MethodPatch {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func PerClientRateLimit(rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once, rps float64, burst int) gin.HandlerFunc {
	cleanupInitialized.Do(func() {
		go cleanupOldRateLimiters(rateLimiters, cleanupStop)
	})

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		limiterInterface, _ := rateLimiters.LoadOrStore(clientIP, newClientLimiter(rps, burst))
		cl := limiterInterface.(*clientLimiter)
		cl.lastSeen.Store(time.Now().UnixNano())

		if !cl.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.ErrorResponse{
				Status:  types.StatusError,
				Message: "Rate limit exceeded. Please slow down your requests.",
				Error:   string(apperrors.ErrCodeAPIRateLimit),
			})
			return
		}
		c.Next()
	}
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	cl := &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
	cl.lastSeen.Store(time.Now().UnixNano())
	return cl
}

func cleanupOldRateLimiters(rateLimiters *sync.Map, cleanupStop chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pruneRateLimiters(rateLimiters, time.Now(), 10*time.Minute)
		case <-cleanupStop:
			return
		}
	}
}

func pruneRateLimiters(rateLimiters *sync.Map, now time.Time, idle time.Duration) {
	rateLimiters.Range(func(key, value interface{}) bool {
		cl := value.(*clientLimiter)
		if now.Sub(time.Unix(0, cl.lastSeen.Load())) > idle {
			rateLimiters.Delete(key)
		}
		return true
	})
}

// InternalToken guards internal routes with a shared secret. An empty
// token disables the routes.
func InternalToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, types.ErrorResponse{
				Status:  types.StatusError,
				Message: "Internal routes are disabled",
				Error:   string(apperrors.ErrCodeUnavailable),
			})
			return
		}
		got := c.GetHeader(InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{
				Status:  types.StatusError,
				Message: "Invalid internal token",
				Error:   string(apperrors.ErrCodeUnauthorized),
			})
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request. Health probes log at debug.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if id, ok := types.CurrentUserID(c); ok {
			kv = append(kv, "user_id", id)
		}
		switch {
		case c.Request.URL.Path == "/health":
			log.Debug("Request", kv...)
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("Request", kv...)
		default:
			log.Info("Request", kv...)
		}
	}
}
