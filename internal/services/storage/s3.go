package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/killallgit/audiolingu-api/pkg/config"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// S3Store keeps objects in any S3-compatible bucket (R2, MinIO, AWS)
type S3Store struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	presignTTL    time.Duration
}

func NewS3Store(ctx context.Context, cfg config.S3StoreConfig, log *logger.Logger) (*S3Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires storage.s3.endpoint and storage.s3.bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("error checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("error creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	log.Info("Object storage initialized", "backend", "s3", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &S3Store{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		presignTTL:    ttl,
	}, nil
}

func (s *S3Store) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return key, nil
}

func (s *S3Store) ResolveURL(ctx context.Context, key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return u.String(), nil
}
