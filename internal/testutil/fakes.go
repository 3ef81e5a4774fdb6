package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/services/events"
	"github.com/killallgit/audiolingu-api/internal/services/imagegen"
	"github.com/killallgit/audiolingu-api/internal/services/llm"
	"github.com/killallgit/audiolingu-api/internal/services/tts"
)

// FakeLLM answers generation requests with Respond and records every request
type FakeLLM struct {
	Respond func(req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (f *FakeLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Respond == nil {
		return "ok", nil
	}
	return f.Respond(req)
}

// Requests returns a copy of the recorded requests
func (f *FakeLLM) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// RespondByInstructions routes a request to the first handler whose key
// appears in its instructions
func RespondByInstructions(handlers map[string]string) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		for key, out := range handlers {
			if strings.Contains(req.Instructions, key) {
				return out, nil
			}
		}
		return "", fmt.Errorf("no fake response for request")
	}
}

// FakeSynthesizer returns fixed audio with timing derived from the text
type FakeSynthesizer struct {
	Err        error
	CharLength float64

	calls     atomic.Int32
	lastVoice atomic.Value
}

func (f *FakeSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (*tts.Speech, error) {
	f.calls.Add(1)
	f.lastVoice.Store(voiceID)
	if f.Err != nil {
		return nil, f.Err
	}
	step := f.CharLength
	if step == 0 {
		step = 0.1
	}
	payload, err := AlignmentFor(text, step)
	if err != nil {
		return nil, err
	}
	return &tts.Speech{Audio: []byte("ID3-fake-mp3"), ContentType: "audio/mpeg", Alignment: payload}, nil
}

func (f *FakeSynthesizer) Calls() int { return int(f.calls.Load()) }

func (f *FakeSynthesizer) LastVoice() string {
	v, _ := f.lastVoice.Load().(string)
	return v
}

// AlignmentFor builds a timing payload where each character lasts step seconds
func AlignmentFor(text string, step float64) (string, error) {
	var p alignment.Payload
	for i, r := range []rune(text) {
		p.Characters = append(p.Characters, string(r))
		p.Starts = append(p.Starts, float64(i)*step)
		p.Ends = append(p.Ends, float64(i+1)*step)
	}
	return p.JSON()
}

// FakeImages returns Image, which may be nil to signal no image
type FakeImages struct {
	Image *imagegen.Image
	Err   error

	calls atomic.Int32
}

func (f *FakeImages) Generate(ctx context.Context, prompt string) (*imagegen.Image, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Image, nil
}

func (f *FakeImages) Calls() int { return int(f.calls.Load()) }

// PNG is a minimal image body for FakeImages
func PNG() *imagegen.Image {
	return &imagegen.Image{Data: []byte("\x89PNG\r\n\x1a\nfake"), ContentType: "image/png"}
}

// MemoryStore is an in-memory object store
type MemoryStore struct {
	Err error

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *MemoryStore) Store(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return key, nil
}

func (m *MemoryStore) ResolveURL(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", errors.New("object not found")
	}
	return "https://media.test/" + key, nil
}

// Object returns a stored body and its content type
func (m *MemoryStore) Object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, m.types[key], ok
}

// Len returns the number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// RecordingPublisher keeps published events in memory
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *RecordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Types returns the event types in publish order
func (r *RecordingPublisher) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Events returns a copy of the published events
func (r *RecordingPublisher) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}
