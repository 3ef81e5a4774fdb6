// Package tts adapts the ElevenLabs speech API: synthesis with
// character-level timestamps and the shared voice library.
package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/pkg/httpx"
	"github.com/killallgit/audiolingu-api/pkg/logger"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

const (
	serviceName = "elevenlabs"

	DefaultVoiceID      = "KoVIHoyLDrQyd4pGalbs"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"
)

// APIError is a non-2xx response from ElevenLabs
type APIError = httpx.StatusError

// ParseError is an ElevenLabs body that could not be read
type ParseError = httpx.ParseError

// Speech is synthesized audio plus its raw character timing payload
type Speech struct {
	Audio       []byte
	ContentType string
	// Alignment is the timing payload serialized as JSON, ready to persist
	Alignment string
}

// Synthesizer turns text into speech with timing metadata
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*Speech, error)
}

// Config contains the settings for Client
type Config struct {
	APIKey         string
	BaseURL        string
	DefaultVoiceID string
	ModelID        string
	OutputFormat   string
	Timeout        time.Duration
	Retry          retry.Policy
}

// Client talks to the ElevenLabs REST API
type Client struct {
	config     Config
	httpClient *http.Client
	log        *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.DefaultVoiceID == "" {
		cfg.DefaultVoiceID = DefaultVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = DefaultOutputFormat
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
		log.Warn("ElevenLabs call retrying", "wait", wait.String(), "error", err)
	})

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type speechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type speechResponse struct {
	AudioBase64         string          `json:"audio_base64"`
	Alignment           json.RawMessage `json:"alignment"`
	NormalizedAlignment json.RawMessage `json:"normalized_alignment"`
}

// Synthesize renders text with the given voice. An empty voiceID uses the
// configured default.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (*Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("tts: empty text")
	}
	if voiceID == "" {
		voiceID = c.config.DefaultVoiceID
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps?output_format=%s",
		c.config.BaseURL, url.PathEscape(voiceID), url.QueryEscape(c.config.OutputFormat))
	body := speechRequest{Text: text, ModelID: c.config.ModelID}

	start := time.Now()
	speech, err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) (*Speech, error) {
		req, err := httpx.NewJSONRequest(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("xi-api-key", c.config.APIKey)

		raw, _, err := httpx.Do(c.httpClient, serviceName, req)
		if err != nil {
			return nil, err
		}
		return ParseSpeechResponse(raw, contentTypeFor(c.config.OutputFormat))
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug("Speech synthesized", "voice_id", voiceID, "bytes", len(speech.Audio), "took", time.Since(start).String())
	return speech, nil
}

// ParseSpeechResponse validates a with-timestamps response. The audio must
// decode to a non-empty byte slice and a timing payload must be present;
// normalized_alignment is used when alignment is missing.
func ParseSpeechResponse(raw []byte, contentType string) (*Speech, error) {
	var resp speechResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, httpx.NewParseError(serviceName, "decoding speech response", err)
	}
	if resp.AudioBase64 == "" {
		return nil, httpx.NewParseError(serviceName, "missing audio_base64", nil)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return nil, httpx.NewParseError(serviceName, "decoding audio_base64", err)
	}
	if len(audio) == 0 {
		return nil, httpx.NewParseError(serviceName, "empty audio", nil)
	}

	timing := resp.Alignment
	if isNullJSON(timing) {
		timing = resp.NormalizedAlignment
	}
	if isNullJSON(timing) {
		return nil, httpx.NewParseError(serviceName, "missing alignment", nil)
	}
	payload, err := alignment.ParsePayload(string(timing))
	if err != nil {
		return nil, httpx.NewParseError(serviceName, "reading alignment", err)
	}
	normalized, err := payload.JSON()
	if err != nil {
		return nil, httpx.NewParseError(serviceName, "encoding alignment", err)
	}

	return &Speech{Audio: audio, ContentType: contentType, Alignment: normalized}, nil
}

func isNullJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func contentTypeFor(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"):
		return "audio/pcm"
	case strings.HasPrefix(format, "ulaw"):
		return "audio/basic"
	case strings.HasPrefix(format, "opus"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
