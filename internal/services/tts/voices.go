package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/killallgit/audiolingu-api/internal/services/cache"
	"github.com/killallgit/audiolingu-api/pkg/httpx"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

const voicePageSize = 10

var (
	validGenders    = map[string]bool{"male": true, "female": true, "neutral": true}
	validAges       = map[string]bool{"young": true, "middle_aged": true, "old": true}
	validCategories = map[string]bool{"professional": true, "famous": true, "high_quality": true}
)

// VoiceQuery filters the shared voice library. Language is required.
type VoiceQuery struct {
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
	Age      string `json:"age,omitempty"`
	Category string `json:"category,omitempty"`
}

// Validate rejects filter values the voice library does not understand
func (q VoiceQuery) Validate() error {
	if strings.TrimSpace(q.Language) == "" {
		return fmt.Errorf("language is required")
	}
	if q.Gender != "" && !validGenders[q.Gender] {
		return fmt.Errorf("unsupported gender %q", q.Gender)
	}
	if q.Age != "" && !validAges[q.Age] {
		return fmt.Errorf("unsupported age %q", q.Age)
	}
	if q.Category != "" && !validCategories[q.Category] {
		return fmt.Errorf("unsupported category %q", q.Category)
	}
	return nil
}

func (q VoiceQuery) cacheKey() string {
	return fmt.Sprintf("voices:%s:%s:%s:%s", q.Language, q.Gender, q.Age, q.Category)
}

// Voice is one entry from the shared voice library
type Voice struct {
	VoiceID     string `json:"voiceId"`
	Name        string `json:"name"`
	Gender      string `json:"gender,omitempty"`
	Age         string `json:"age,omitempty"`
	Category    string `json:"category,omitempty"`
	Language    string `json:"language,omitempty"`
	PreviewURL  string `json:"previewUrl,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Descriptive string `json:"descriptive,omitempty"`
}

// VoiceSearchResult is one page of voices
type VoiceSearchResult struct {
	HasMore bool    `json:"hasMore"`
	Voices  []Voice `json:"voices"`
}

// VoiceSearcher looks up voices in the shared library
type VoiceSearcher interface {
	SearchVoices(ctx context.Context, q VoiceQuery) (*VoiceSearchResult, error)
}

type sharedVoice struct {
	VoiceID     any `json:"voice_id"`
	Name        any `json:"name"`
	Gender      any `json:"gender"`
	Age         any `json:"age"`
	Category    any `json:"category"`
	Language    any `json:"language"`
	PreviewURL  any `json:"preview_url"`
	ImageURL    any `json:"image_url"`
	Descriptive any `json:"descriptive"`
}

type sharedVoicesResponse struct {
	Voices  json.RawMessage `json:"voices"`
	HasMore bool            `json:"has_more"`
}

// SearchVoices queries GET /v1/shared-voices
func (c *Client) SearchVoices(ctx context.Context, q VoiceQuery) (*VoiceSearchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("language", q.Language)
	params.Set("page_size", fmt.Sprint(voicePageSize))
	if q.Gender != "" {
		params.Set("gender", q.Gender)
	}
	if q.Age != "" {
		params.Set("age", q.Age)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	endpoint := c.config.BaseURL + "/v1/shared-voices?" + params.Encode()

	return retry.Do(ctx, c.config.Retry, func(ctx context.Context) (*VoiceSearchResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("xi-api-key", c.config.APIKey)

		raw, _, err := httpx.Do(c.httpClient, serviceName, req)
		if err != nil {
			return nil, err
		}
		return ParseVoicesResponse(raw)
	})
}

// ParseVoicesResponse keeps only entries with a string id and name. Optional
// fields that are not strings are dropped.
func ParseVoicesResponse(raw []byte) (*VoiceSearchResult, error) {
	var resp sharedVoicesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, httpx.NewParseError(serviceName, "decoding shared voices", err)
	}

	result := &VoiceSearchResult{HasMore: resp.HasMore, Voices: []Voice{}}

	var entries []json.RawMessage
	if err := json.Unmarshal(resp.Voices, &entries); err != nil {
		return result, nil
	}
	for _, entry := range entries {
		var sv sharedVoice
		if err := json.Unmarshal(entry, &sv); err != nil {
			continue
		}
		v := Voice{
			VoiceID:     str(sv.VoiceID),
			Name:        str(sv.Name),
			Gender:      str(sv.Gender),
			Age:         str(sv.Age),
			Category:    str(sv.Category),
			Language:    str(sv.Language),
			PreviewURL:  str(sv.PreviewURL),
			ImageURL:    str(sv.ImageURL),
			Descriptive: str(sv.Descriptive),
		}
		if v.VoiceID == "" || v.Name == "" {
			continue
		}
		result.Voices = append(result.Voices, v)
	}
	return result, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// CachedVoiceSearcher memoizes voice searches per filter combination
type CachedVoiceSearcher struct {
	next  VoiceSearcher
	cache cache.Cache
	ttl   time.Duration
}

func NewCachedVoiceSearcher(next VoiceSearcher, c cache.Cache, ttl time.Duration) *CachedVoiceSearcher {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedVoiceSearcher{next: next, cache: c, ttl: ttl}
}

func (s *CachedVoiceSearcher) SearchVoices(ctx context.Context, q VoiceQuery) (*VoiceSearchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key := q.cacheKey()
	if cached, ok := cache.GetJSON[VoiceSearchResult](ctx, s.cache, key); ok {
		return &cached, nil
	}

	res, err := s.next.SearchVoices(ctx, q)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(ctx, s.cache, key, res, s.ttl)
	return res, nil
}
