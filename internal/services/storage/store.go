// Package storage persists generated media (cover images and audio) and
// turns stored keys into URLs the client can fetch.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/killallgit/audiolingu-api/pkg/config"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// ErrInvalidKey is returned for keys that would escape the store
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore is the object storage capability
type ObjectStore interface {
	// Store writes data under key and returns the key
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// ResolveURL returns a URL for a stored key
	ResolveURL(ctx context.Context, key string) (string, error)
}

const (
	PrefixCovers = "covers"
	PrefixAudio  = "audio"
)

// NewKey returns "<prefix>/<uuid>.<ext>"
func NewKey(prefix, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s.%s", strings.Trim(prefix, "/"), uuid.NewString(), ext)
}

// NewCoverKey picks png or jpg from the image content type
func NewCoverKey(contentType string) string {
	ext := "png"
	if ct := strings.ToLower(contentType); ct == "image/jpeg" || ct == "image/jpg" {
		ext = "jpg"
	}
	return NewKey(PrefixCovers, ext)
}

func NewAudioKey() string {
	return NewKey(PrefixAudio, "mp3")
}

// ExtensionFor maps a content type to a file extension without the dot
func ExtensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

// CleanKey validates a key and strips leading slashes
func CleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

// New builds the store selected by storage.backend
func New(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (ObjectStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch cfg.Backend {
	case "", "filesystem":
		return NewFilesystemStore(cfg.FS.BaseDir, cfg.FS.BaseURL)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCS, log)
	case "s3":
		return NewS3Store(ctx, cfg.S3, log)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}
