package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTooLarge is returned when a body exceeds Options.MaxSize
var ErrTooLarge = errors.New("download exceeds size limit")

// Options configures the download behavior
type Options struct {
	MaxSize      int64         // Maximum body size in bytes (0 = no limit)
	Timeout      time.Duration // Whole-request timeout
	UserAgent    string
	AllowedTypes []string     // Accepted media type prefixes; empty accepts anything
	ProgressFunc ProgressFunc // Optional progress callback
}

// ProgressFunc is called during download to report progress
type ProgressFunc func(downloaded, total int64)

// DefaultOptions returns options suited to generated media
func DefaultOptions() Options {
	return Options{
		MaxSize:      50 * 1024 * 1024,
		Timeout:      2 * time.Minute,
		UserAgent:    "AudiolinguAPI/1.0",
		AllowedTypes: []string{"image/", "audio/", "application/octet-stream"},
	}
}

// Result is a downloaded body held in memory
type Result struct {
	Data        []byte
	ContentType string
	ETag        string
}

// Downloader fetches remote media into memory
type Downloader struct {
	client  *http.Client
	options Options
}

// NewDownloader creates a new downloader with the given options
func NewDownloader(options Options) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: options.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		options: options,
	}
}

// Fetch downloads url and returns its body and media type
func (d *Downloader) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.options.UserAgent != "" {
		req.Header.Set("User-Agent", d.options.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if contentType != "" && !d.allowed(contentType) {
		return nil, fmt.Errorf("invalid content type: %s", contentType)
	}
	if d.options.MaxSize > 0 && resp.ContentLength > d.options.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, resp.ContentLength, d.options.MaxSize)
	}

	data, err := d.read(resp.Body, resp.ContentLength)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = mediaType(http.DetectContentType(data))
		if !d.allowed(contentType) {
			return nil, fmt.Errorf("invalid content type: %s", contentType)
		}
	}

	return &Result{
		Data:        data,
		ContentType: contentType,
		ETag:        resp.Header.Get("ETag"),
	}, nil
}

func (d *Downloader) read(src io.Reader, totalSize int64) ([]byte, error) {
	reader := src
	if d.options.ProgressFunc != nil && totalSize > 0 {
		reader = &progressReader{
			reader:   src,
			total:    totalSize,
			callback: d.options.ProgressFunc,
		}
	}
	// Read one byte past the limit to detect oversize bodies without a length
	if d.options.MaxSize > 0 {
		reader = io.LimitReader(reader, d.options.MaxSize+1)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	if d.options.MaxSize > 0 && int64(buf.Len()) > d.options.MaxSize {
		return nil, fmt.Errorf("%w: max %d bytes", ErrTooLarge, d.options.MaxSize)
	}
	return buf.Bytes(), nil
}

func (d *Downloader) allowed(contentType string) bool {
	if len(d.options.AllowedTypes) == 0 {
		return true
	}
	for _, prefix := range d.options.AllowedTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

func mediaType(header string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
}

// progressReader wraps a reader to report progress
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	callback   ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if pr.callback != nil {
			pr.callback(pr.downloaded, pr.total)
		}
	}
	return n, err
}
