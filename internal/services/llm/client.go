package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/audiolingu-api/pkg/httpx"
	"github.com/killallgit/audiolingu-api/pkg/logger"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

const serviceName = "openai-chat"

// APIError is a non-2xx response from the chat completions endpoint
type APIError = httpx.StatusError

// ParseError is a chat completion body that could not be read
type ParseError = httpx.ParseError

// Message is one turn of a conversation thread
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single text generation call. Instructions become the system
// message, Messages are appended in order, and Prompt is the final user turn.
type Request struct {
	Instructions string
	Messages     []Message
	Prompt       string
}

// Generator produces text from a prompt thread
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config contains the settings for Client
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client calls an OpenAI-compatible chat completions endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a chat client with defaults filled in
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", serviceName)
	cfg.Retry = cfg.Retry.WithOnRetry(func(err error, wait time.Duration) {
		log.Warn("Chat completion retrying", "wait", wait.String(), "error", err)
	})

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// BuildMessages assembles the message list sent for a request
func BuildMessages(req Request) []Message {
	msgs := make([]Message, 0, len(req.Messages)+2)
	if s := strings.TrimSpace(req.Instructions); s != "" {
		msgs = append(msgs, Message{Role: "system", Content: s})
	}
	msgs = append(msgs, req.Messages...)
	if s := strings.TrimSpace(req.Prompt); s != "" {
		msgs = append(msgs, Message{Role: "user", Content: s})
	}
	return msgs
}

// Generate runs one chat completion under the client's retry policy
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	msgs := BuildMessages(req)
	if len(msgs) == 0 {
		return "", errors.New("llm request has no messages")
	}
	body := chatRequest{Model: c.config.Model, Messages: msgs}

	return retry.Do(ctx, c.config.Retry, func(ctx context.Context) (string, error) {
		httpReq, err := httpx.NewJSONRequest(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", body)
		if err != nil {
			return "", err
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		raw, _, err := httpx.Do(c.httpClient, serviceName, httpReq)
		if err != nil {
			return "", err
		}
		return ParseChatResponse(raw)
	})
}

// ParseChatResponse extracts the first choice's text. Empty text is an error.
func ParseChatResponse(raw []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", httpx.NewParseError(serviceName, "decoding chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", httpx.NewParseError(serviceName, "no choices returned", nil)
	}
	content := resp.Choices[0].Message.Content
	if content == nil || strings.TrimSpace(*content) == "" {
		return "", httpx.NewParseError(serviceName, fmt.Sprintf("empty content (finish_reason=%q)", resp.Choices[0].FinishReason), nil)
	}
	return *content, nil
}
