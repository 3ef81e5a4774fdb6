// Package middleware holds route-level gin middleware.
package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/audiolingu-api/internal/services/cache"
)

const (
	HeaderCache = "X-Cache"
	keyPrefix   = "http:"
)

// CacheConfig holds configuration for the response cache
type CacheConfig struct {
	Cache      cache.Cache
	DefaultTTL time.Duration
	Enabled    bool
}

// cachedResponse is what gets stored per request key
type cachedResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	ETag        string    `json:"etag"`
	CachedAt    time.Time `json:"cached_at"`
}

// bodyRecorder tees the response body so it can be stored after the handler runs
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// CacheMiddleware serves repeated GETs of immutable resources from cache.
// Only 200 responses are stored. Clients may bypass with Cache-Control.
func CacheMiddleware(cfg CacheConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled || cfg.Cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		if shouldBypassCache(c.Request) {
			c.Header(HeaderCache, "BYPASS")
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := cacheKey(c.Request)

		if raw, found := cfg.Cache.Get(ctx, key); found {
			var cached cachedResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				c.Header(HeaderCache, "HIT")
				c.Header("ETag", cached.ETag)
				c.Header("Age", strconv.Itoa(int(time.Since(cached.CachedAt).Seconds())))
				if match := c.GetHeader("If-None-Match"); match != "" && match == cached.ETag {
					c.AbortWithStatus(http.StatusNotModified)
					return
				}
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
			_ = cfg.Cache.Delete(ctx, key)
		}

		c.Header(HeaderCache, "MISS")
		rec := &bodyRecorder{ResponseWriter: c.Writer, body: bytes.NewBuffer(nil)}
		c.Writer = rec

		c.Next()

		if rec.Status() != http.StatusOK || rec.body.Len() == 0 {
			return
		}
		cached := cachedResponse{
			Status:      http.StatusOK,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
			ETag:        etag(rec.body.Bytes()),
			CachedAt:    time.Now(),
		}
		if data, err := json.Marshal(cached); err == nil {
			_ = cfg.Cache.Set(ctx, key, data, cfg.DefaultTTL)
		}
	}
}

func shouldBypassCache(req *http.Request) bool {
	for _, directive := range strings.Split(strings.ToLower(req.Header.Get("Cache-Control")), ",") {
		switch strings.TrimSpace(directive) {
		case "no-cache", "no-store", "max-age=0":
			return true
		}
	}
	return req.Header.Get("Pragma") == "no-cache"
}

// cacheKey includes the query, re-encoded so parameter order does not matter
func cacheKey(req *http.Request) string {
	if req.URL.RawQuery == "" {
		return keyPrefix + req.URL.Path
	}
	return keyPrefix + req.URL.Path + "?" + req.URL.Query().Encode()
}

func etag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`"%s"`, hex.EncodeToString(sum[:16]))
}
