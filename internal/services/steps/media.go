package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/services/imagegen"
	"github.com/killallgit/audiolingu-api/internal/services/storage"
	"github.com/killallgit/audiolingu-api/internal/services/tts"
	"github.com/killallgit/audiolingu-api/pkg/download"
)

// BinaryInput is media to persist. Either Data or URL is set. When Key is
// empty a key is generated under Prefix.
type BinaryInput struct {
	Data        []byte
	URL         string
	ContentType string
	Key         string
	Prefix      string
}

// StoreBinaryStep writes bytes, or the body behind a URL, to object storage
type StoreBinaryStep struct {
	store      storage.ObjectStore
	downloader *download.Downloader
}

func NewStoreBinaryStep(store storage.ObjectStore, downloader *download.Downloader) *StoreBinaryStep {
	if downloader == nil {
		downloader = download.NewDownloader(download.DefaultOptions())
	}
	return &StoreBinaryStep{store: store, downloader: downloader}
}

// Run stores the input and returns its key
func (s *StoreBinaryStep) Run(ctx context.Context, in BinaryInput) (string, error) {
	data, contentType := in.Data, in.ContentType
	if in.URL != "" {
		res, err := s.downloader.Fetch(ctx, in.URL)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", in.URL, err)
		}
		data = res.Data
		if contentType == "" {
			contentType = res.ContentType
		}
	}
	if len(data) == 0 {
		return "", errors.New("nothing to store")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := in.Key
	if key == "" {
		prefix := in.Prefix
		if prefix == "" {
			prefix = "media"
		}
		key = storage.NewKey(prefix, storage.ExtensionFor(contentType))
	}
	stored, err := s.store.Store(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", key, err)
	}
	return stored, nil
}

// CoverResult reports the stored cover. Generated is false when the image
// service returned no image, which is not an error.
type CoverResult struct {
	Key       string
	Generated bool
}

// CoverImageStep generates the cover image and stores it under covers/
type CoverImageStep struct {
	images imagegen.Generator
	store  *StoreBinaryStep
}

func NewCoverImageStep(images imagegen.Generator, store *StoreBinaryStep) *CoverImageStep {
	return &CoverImageStep{images: images, store: store}
}

func (s *CoverImageStep) Run(ctx context.Context, prompt string) (CoverResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return CoverResult{}, nil
	}
	img, err := s.images.Generate(ctx, prompt)
	if err != nil {
		return CoverResult{}, fmt.Errorf("generating cover: %w", err)
	}
	if img == nil || len(img.Data) == 0 {
		return CoverResult{}, nil
	}
	key, err := s.store.Run(ctx, BinaryInput{
		Data:        img.Data,
		ContentType: img.ContentType,
		Key:         storage.NewCoverKey(img.ContentType),
	})
	if err != nil {
		return CoverResult{}, err
	}
	return CoverResult{Key: key, Generated: true}, nil
}

// SpeechInput is the text to narrate and an optional voice
type SpeechInput struct {
	Transcript string
	VoiceID    string
}

// SpeechResult is the stored narration with its timing payload
type SpeechResult struct {
	AudioKey        string
	AlignmentJSON   string
	DurationSeconds float64
}

// SpeechStep narrates the transcript and stores the audio under audio/
type SpeechStep struct {
	tts   tts.Synthesizer
	store *StoreBinaryStep
}

func NewSpeechStep(synth tts.Synthesizer, store *StoreBinaryStep) *SpeechStep {
	return &SpeechStep{tts: synth, store: store}
}

func (s *SpeechStep) Run(ctx context.Context, in SpeechInput) (*SpeechResult, error) {
	transcript, err := requireTranscript(in.Transcript)
	if err != nil {
		return nil, err
	}
	voice := strings.TrimSpace(in.VoiceID)
	if voice == "" {
		voice = tts.DefaultVoiceID
	}

	speech, err := s.tts.Synthesize(ctx, transcript, voice)
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	payload, err := alignment.ParsePayload(speech.Alignment)
	if err != nil {
		return nil, fmt.Errorf("reading speech timing: %w", err)
	}

	contentType := speech.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	key, err := s.store.Run(ctx, BinaryInput{
		Data:        speech.Audio,
		ContentType: contentType,
		Key:         storage.NewAudioKey(),
	})
	if err != nil {
		return nil, err
	}

	return &SpeechResult{
		AudioKey:        key,
		AlignmentJSON:   speech.Alignment,
		DurationSeconds: alignment.Duration(payload),
	}, nil
}
