package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore keeps objects under a local directory. The API serves that
// directory at baseURL.
type FilesystemStore struct {
	basePath string
	baseURL  string
}

func NewFilesystemStore(basePath, baseURL string) (*FilesystemStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("filesystem store requires a base directory")
	}
	for _, sub := range []string{"", PrefixCovers, PrefixAudio} {
		if err := os.MkdirAll(filepath.Join(basePath, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &FilesystemStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// BasePath is the directory the store writes to
func (fs *FilesystemStore) BasePath() string {
	return fs.basePath
}

func (fs *FilesystemStore) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fullPath := filepath.Join(fs.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a sibling temp file so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}
	return key, nil
}

func (fs *FilesystemStore) ResolveURL(ctx context.Context, key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(fs.basePath, filepath.FromSlash(key))); err != nil {
		return "", fmt.Errorf("resolving %s: %w", key, err)
	}
	return fs.baseURL + "/" + key, nil
}
