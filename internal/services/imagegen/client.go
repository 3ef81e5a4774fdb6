// Package imagegen adapts the OpenAI images endpoint for episode cover art.
package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/audiolingu-api/pkg/httpx"
	"github.com/killallgit/audiolingu-api/pkg/logger"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

const serviceName = "openai-images"

// APIError is a non-2xx response from the images endpoint
type APIError = httpx.StatusError

// ParseError is an images body that could not be read
type ParseError = httpx.ParseError

// Image is a generated picture ready to store
type Image struct {
	Data          []byte
	ContentType   string
	RevisedPrompt string
}

// Generator creates an image from a text prompt. A nil image with a nil
// error means the provider returned nothing usable.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// Config contains the settings for Client
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client calls an OpenAI-compatible images endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-image-1"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", serviceName)
	cfg.Retry = cfg.Retry.WithOnRetry(func(err error, wait time.Duration) {
		log.Warn("Image generation retrying", "wait", wait.String(), "error", err)
	})

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type generationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type generationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// Result is the validated first entry of an images response
type Result struct {
	B64           string
	URL           string
	RevisedPrompt string
}

// Empty reports whether the provider returned neither bytes nor a link
func (r Result) Empty() bool {
	return r.B64 == "" && r.URL == ""
}

// Generate creates one image. URL results are downloaded.
func (c *Client) Generate(ctx context.Context, prompt string) (*Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("image prompt required")
	}

	req := generationRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		N:      1,
		Size:   c.config.Size,
	}
	// gpt-image models always return base64 and reject response_format
	if !strings.HasPrefix(strings.ToLower(c.config.Model), "gpt-image-") {
		req.ResponseFormat = "b64_json"
	}

	res, err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) (Result, error) {
		httpReq, err := httpx.NewJSONRequest(ctx, http.MethodPost, c.config.BaseURL+"/images/generations", req)
		if err != nil {
			return Result{}, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		raw, _, err := httpx.Do(c.httpClient, serviceName, httpReq)
		if err != nil {
			return Result{}, err
		}
		return ParseImageResponse(raw)
	})
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		c.log.Warn("Image provider returned no image", "model", c.config.Model)
		return nil, nil
	}

	if res.B64 != "" {
		data, err := base64.StdEncoding.DecodeString(res.B64)
		if err != nil {
			return nil, httpx.NewParseError(serviceName, "decoding b64_json", err)
		}
		return &Image{Data: data, ContentType: http.DetectContentType(data), RevisedPrompt: res.RevisedPrompt}, nil
	}

	img, err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) (*Image, error) {
		data, ct, err := httpx.Fetch(ctx, c.httpClient, serviceName, res.URL)
		if err != nil {
			return nil, err
		}
		return &Image{Data: data, ContentType: ct, RevisedPrompt: res.RevisedPrompt}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(img.Data) == 0 {
		return nil, nil
	}
	return img, nil
}

// ParseImageResponse returns the first image entry. An empty data array is
// not an error; the caller treats it as "no image".
func ParseImageResponse(raw []byte) (Result, error) {
	var resp generationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Result{}, httpx.NewParseError(serviceName, "decoding images response", err)
	}
	if len(resp.Data) == 0 {
		return Result{}, nil
	}
	item := resp.Data[0]
	out := Result{
		B64:           strings.TrimSpace(item.B64JSON),
		URL:           strings.TrimSpace(item.URL),
		RevisedPrompt: strings.TrimSpace(item.RevisedPrompt),
	}
	if out.B64 == "" && out.URL != "" && !strings.HasPrefix(out.URL, "http://") && !strings.HasPrefix(out.URL, "https://") {
		return Result{}, httpx.NewParseError(serviceName, "image url is not http(s)", nil)
	}
	return out, nil
}
