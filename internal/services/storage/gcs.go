package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/killallgit/audiolingu-api/pkg/config"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// GCSStore keeps objects in a Google Cloud Storage bucket
type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
	signedURLTTL  time.Duration
	log           *logger.Logger
}

func NewGCSStore(ctx context.Context, cfg config.GCSStoreConfig, log *logger.Logger) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs store requires storage.gcs.bucket")
	}
	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	log.Info("Object storage initialized", "backend", "gcs", "bucket", cfg.Bucket, "public_base_url", cfg.PublicBaseURL)

	return &GCSStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		signedURLTTL:  ttl,
		log:           log.With("service", "gcs_store"),
	}, nil
}

func (s *GCSStore) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return key, nil
}

// ResolveURL prefers the public base URL (a CDN in front of the bucket) and
// otherwise signs a short-lived GET URL
func (s *GCSStore) ResolveURL(ctx context.Context, key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.signedURLTTL),
	})
	if err != nil {
		return "", fmt.Errorf("signing url for %s: %w", key, err)
	}
	return u, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
