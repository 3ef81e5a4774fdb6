// Package email sends notification mail through the Resend HTTP API.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/killallgit/audiolingu-api/pkg/httpx"
	"github.com/killallgit/audiolingu-api/pkg/logger"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

const serviceName = "resend"

// APIError is a non-2xx response from Resend
type APIError = httpx.StatusError

// Message is one outgoing email
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers email and returns the provider message id
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Config contains the settings for Client
type Config struct {
	APIKey  string
	BaseURL string
	From    string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client is a Resend API client
type Client struct {
	config     Config
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.resend.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("service", serviceName)
	cfg.Retry = cfg.Retry.WithOnRetry(func(err error, wait time.Duration) {
		log.Warn("Email send retrying", "wait", wait.String(), "error", err)
	})
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.To) == "" {
		return "", fmt.Errorf("email recipient required")
	}
	if msg.From == "" {
		msg.From = c.config.From
	}
	body := sendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}

	id, err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) (string, error) {
		req, err := httpx.NewJSONRequest(ctx, http.MethodPost, c.config.BaseURL+"/emails", body)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		raw, _, err := httpx.Do(c.httpClient, serviceName, req)
		if err != nil {
			return "", err
		}
		var resp sendResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", httpx.NewParseError(serviceName, "decoding send response", err)
		}
		return resp.ID, nil
	})
	if err != nil {
		return "", err
	}

	c.log.Info("Email sent", "message_id", id, "subject", msg.Subject)
	return id, nil
}

// NopSender drops messages. It is used when email is disabled.
type NopSender struct {
	log *logger.Logger
}

func NewNopSender(log *logger.Logger) *NopSender {
	if log == nil {
		log = logger.Nop()
	}
	return &NopSender{log: log}
}

func (n *NopSender) Send(ctx context.Context, msg Message) (string, error) {
	n.log.Debug("Email disabled, dropping message", "subject", msg.Subject)
	return "", nil
}
