package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/services/cache"
	"github.com/killallgit/audiolingu-api/pkg/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Retryable: retry.IsTransient}
}

const speechBody = `{
	"audio_base64": "` + "SUQzBAAAAAAA" + `",
	"alignment": {
		"characters": ["H","o","l","a"],
		"character_start_times_seconds": [0, 0.1, 0.2, 0.3],
		"character_end_times_seconds": [0.1, 0.2, 0.3, 0.4]
	}
}`

func TestClient_Synthesize(t *testing.T) {
	var gotPath, gotFormat, gotKey string
	var gotBody speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(speechBody))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "xi-test", BaseURL: srv.URL, Retry: fastRetry()}, nil)
	speech, err := c.Synthesize(context.Background(), "Hola", "")
	require.NoError(t, err)

	assert.Equal(t, "/v1/text-to-speech/"+DefaultVoiceID+"/with-timestamps", gotPath)
	assert.Equal(t, DefaultOutputFormat, gotFormat)
	assert.Equal(t, "xi-test", gotKey)
	assert.Equal(t, DefaultModelID, gotBody.ModelID)
	assert.Equal(t, "Hola", gotBody.Text)

	assert.Equal(t, "audio/mpeg", speech.ContentType)
	assert.NotEmpty(t, speech.Audio)

	p, err := alignment.ParsePayload(speech.Alignment)
	require.NoError(t, err)
	assert.Equal(t, []string{"H", "o", "l", "a"}, p.Characters)
	assert.InDelta(t, 0.4, alignment.Duration(p), 1e-9)
}

func TestClient_SynthesizeUsesRequestedVoice(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(speechBody))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	_, err := c.Synthesize(context.Background(), "Hola", "voice-123")
	require.NoError(t, err)
	assert.Equal(t, "/v1/text-to-speech/voice-123/with-timestamps", gotPath)
}

func TestClient_SynthesizeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	_, err := c.Synthesize(context.Background(), "Hola", "")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestParseSpeechResponse(t *testing.T) {
	audio := base64.StdEncoding.EncodeToString([]byte("mp3"))
	timing := `{"characters":["a"],"character_start_times_seconds":[0],"character_end_times_seconds":[0.2]}`

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "alignment", raw: `{"audio_base64":"` + audio + `","alignment":` + timing + `}`},
		{name: "normalized fallback", raw: `{"audio_base64":"` + audio + `","alignment":null,"normalized_alignment":` + timing + `}`},
		{name: "no audio", raw: `{"alignment":` + timing + `}`, wantErr: true},
		{name: "bad base64", raw: `{"audio_base64":"%%%","alignment":` + timing + `}`, wantErr: true},
		{name: "no alignment", raw: `{"audio_base64":"` + audio + `"}`, wantErr: true},
		{name: "not json", raw: `nope`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			speech, err := ParseSpeechResponse([]byte(tt.raw), "audio/mpeg")
			if tt.wantErr {
				var pe *ParseError
				assert.True(t, errors.As(err, &pe))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []byte("mp3"), speech.Audio)
			assert.Contains(t, speech.Alignment, "character_end_times_seconds")
		})
	}
}

func TestClient_SearchVoices(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/shared-voices", r.URL.Path)
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		_, _ = w.Write([]byte(`{
			"has_more": true,
			"voices": [
				{"voice_id":"v1","name":"Lucia","gender":"female","age":"young","language":"es","preview_url":"https://cdn/p1.mp3"},
				{"voice_id":"","name":"NoID"},
				{"voice_id":"v3","name":42},
				{"voice_id":"v4","name":"Mateo","gender":7}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Retry: fastRetry()}, nil)
	res, err := c.SearchVoices(context.Background(), VoiceQuery{Language: "es", Gender: "female"})
	require.NoError(t, err)

	assert.Equal(t, "es", query["language"])
	assert.Equal(t, "female", query["gender"])
	assert.Equal(t, "10", query["page_size"])
	_, hasAge := query["age"]
	assert.False(t, hasAge)

	assert.True(t, res.HasMore)
	require.Len(t, res.Voices, 2)
	assert.Equal(t, "Lucia", res.Voices[0].Name)
	assert.Equal(t, "https://cdn/p1.mp3", res.Voices[0].PreviewURL)
	assert.Equal(t, "Mateo", res.Voices[1].Name)
	assert.Empty(t, res.Voices[1].Gender)
}

func TestVoiceQuery_Validate(t *testing.T) {
	assert.NoError(t, VoiceQuery{Language: "fr", Age: "middle_aged", Category: "high_quality"}.Validate())
	assert.Error(t, VoiceQuery{}.Validate())
	assert.Error(t, VoiceQuery{Language: "fr", Gender: "robot"}.Validate())
	assert.Error(t, VoiceQuery{Language: "fr", Age: "ancient"}.Validate())
	assert.Error(t, VoiceQuery{Language: "fr", Category: "cloned"}.Validate())
}

func TestParseVoicesResponse_MissingVoices(t *testing.T) {
	res, err := ParseVoicesResponse([]byte(`{"has_more":false}`))
	require.NoError(t, err)
	assert.NotNil(t, res.Voices)
	assert.Empty(t, res.Voices)
}

type countingSearcher struct {
	calls int
}

func (s *countingSearcher) SearchVoices(ctx context.Context, q VoiceQuery) (*VoiceSearchResult, error) {
	s.calls++
	return &VoiceSearchResult{Voices: []Voice{{VoiceID: "v1", Name: q.Language}}}, nil
}

func TestCachedVoiceSearcher(t *testing.T) {
	mc := cache.NewMemoryCache(1, time.Hour)
	defer mc.Stop()

	inner := &countingSearcher{}
	s := NewCachedVoiceSearcher(inner, mc, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := s.SearchVoices(ctx, VoiceQuery{Language: "de"})
		require.NoError(t, err)
		assert.Equal(t, "de", res.Voices[0].Name)
	}
	assert.Equal(t, 1, inner.calls)

	_, err := s.SearchVoices(ctx, VoiceQuery{Language: "de", Gender: "male"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	_, err = s.SearchVoices(ctx, VoiceQuery{Language: "de", Gender: "other"})
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}
