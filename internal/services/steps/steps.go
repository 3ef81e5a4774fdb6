// Package steps holds the single-purpose units a podcast run is built from.
// Each step makes one capability call and returns a typed result.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/killallgit/audiolingu-api/internal/services/llm"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
)

// ErrEmptyOutput is returned when a generator answers with blank text
var ErrEmptyOutput = errors.New("generator returned empty output")

// ProfileSource loads what the script writer needs to know about a learner
type ProfileSource interface {
	LoadSnapshot(ctx context.Context, userID uint) (*profiles.Snapshot, error)
	PastSummaries(ctx context.Context, userID uint, limit int) ([]profiles.EpisodeSummary, error)
}

var languageNames = map[string]string{
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
}

// LanguageName returns the English name of a language code, or the code itself
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// CollapseWhitespace joins all runs of whitespace into single spaces
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func generate(ctx context.Context, gen llm.Generator, name string, req llm.Request) (string, error) {
	out, err := gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%s: %w", name, ErrEmptyOutput)
	}
	return out, nil
}

func requireTranscript(transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", fmt.Errorf("%w: transcript is empty", ErrEmptyOutput)
	}
	return transcript, nil
}

// ScriptStep writes the episode script for one learner
type ScriptStep struct {
	gen       llm.Generator
	profiles  ProfileSource
	pastLimit int
}

// NewScriptStep creates the script writer. pastLimit is clamped to 1..50 and
// defaults to 10.
func NewScriptStep(gen llm.Generator, source ProfileSource, pastLimit int) *ScriptStep {
	return &ScriptStep{
		gen:       gen,
		profiles:  source,
		pastLimit: profiles.ClampLimit(pastLimit, profiles.DefaultPastSummaries, profiles.MaxPastSummaries),
	}
}

// Run loads the learner's snapshot and history and returns the transcript.
// A profile without a target language or level is rejected before any
// generation call.
func (s *ScriptStep) Run(ctx context.Context, userID uint) (string, error) {
	snap, err := s.profiles.LoadSnapshot(ctx, userID)
	if err != nil {
		return "", err
	}
	if err := snap.Validate(); err != nil {
		return "", err
	}
	past, err := s.profiles.PastSummaries(ctx, userID, s.pastLimit)
	if err != nil {
		return "", err
	}
	return generate(ctx, s.gen, "writing script", ScriptRequest(snap, past))
}

// ScriptRequest builds the writer thread: instructions, the learner profile
// and the past episodes, then the final ask.
func ScriptRequest(snap *profiles.Snapshot, past []profiles.EpisodeSummary) llm.Request {
	instructions := writerInstructions
	if guidance := strings.TrimSpace(snap.InternalPrompt); guidance != "" {
		instructions += "\n\nGuidance for this learner, based on their feedback:\n" + guidance
	}

	var profile strings.Builder
	profile.WriteString("Learner profile:\n")
	fmt.Fprintf(&profile, "- Target language: %s (%s)\n", LanguageName(snap.TargetLanguage), snap.TargetLanguage)
	fmt.Fprintf(&profile, "- Level: %s\n", snap.ProficiencyLevel)
	duration := snap.EpisodeDuration
	if duration <= 0 {
		duration = profiles.DefaultEpisodeDuration
	}
	fmt.Fprintf(&profile, "- Episode length: about %d minutes\n", duration)
	if len(snap.Interests) > 0 {
		fmt.Fprintf(&profile, "- Interests: %s\n", strings.Join(snap.Interests, ", "))
	} else {
		profile.WriteString("- Interests: none given, choose a broadly appealing topic\n")
	}

	var history strings.Builder
	if len(past) == 0 {
		history.WriteString("Past episodes: none yet.")
	} else {
		history.WriteString("Past episodes, newest first:\n")
		for i, ep := range past {
			fmt.Fprintf(&history, "%d. %s: %s\n", i+1, CollapseWhitespace(ep.Title), CollapseWhitespace(ep.Summary))
		}
	}

	return llm.Request{
		Instructions: instructions,
		Messages: []llm.Message{
			{Role: "user", Content: strings.TrimSpace(profile.String())},
			{Role: "user", Content: strings.TrimSpace(history.String())},
		},
		Prompt: scriptPrompt,
	}
}

// TitleStep names an episode from its transcript
type TitleStep struct {
	gen llm.Generator
}

func NewTitleStep(gen llm.Generator) *TitleStep {
	return &TitleStep{gen: gen}
}

func (s *TitleStep) Run(ctx context.Context, transcript string) (string, error) {
	transcript, err := requireTranscript(transcript)
	if err != nil {
		return "", err
	}
	out, err := generate(ctx, s.gen, "writing title", llm.Request{
		Instructions: titleInstructions,
		Prompt:       "Write the title for this script.\n\nScript:\n" + transcript,
	})
	if err != nil {
		return "", err
	}
	return CollapseWhitespace(out), nil
}

// SummaryStep writes the short episode description
type SummaryStep struct {
	gen llm.Generator
}

func NewSummaryStep(gen llm.Generator) *SummaryStep {
	return &SummaryStep{gen: gen}
}

func (s *SummaryStep) Run(ctx context.Context, transcript string) (string, error) {
	transcript, err := requireTranscript(transcript)
	if err != nil {
		return "", err
	}
	out, err := generate(ctx, s.gen, "writing summary", llm.Request{
		Instructions: summaryInstructions,
		Prompt:       "Write the summary for this script.\n\nScript:\n" + transcript,
	})
	if err != nil {
		return "", err
	}
	return CollapseWhitespace(out), nil
}

// ImagePromptStep turns a transcript into an English cover art prompt
type ImagePromptStep struct {
	gen llm.Generator
}

func NewImagePromptStep(gen llm.Generator) *ImagePromptStep {
	return &ImagePromptStep{gen: gen}
}

func (s *ImagePromptStep) Run(ctx context.Context, transcript string) (string, error) {
	transcript, err := requireTranscript(transcript)
	if err != nil {
		return "", err
	}
	return generate(ctx, s.gen, "writing image prompt", llm.Request{
		Instructions: imagePromptInstructions,
		Prompt:       "Write one image prompt for this script.\n\nScript:\n" + transcript,
	})
}

// QuizStep asks for quiz JSON. The quizzes package parses and validates it.
type QuizStep struct {
	gen llm.Generator
}

func NewQuizStep(gen llm.Generator) *QuizStep {
	return &QuizStep{gen: gen}
}

func (s *QuizStep) Run(ctx context.Context, transcript string) (string, error) {
	transcript, err := requireTranscript(transcript)
	if err != nil {
		return "", err
	}
	return generate(ctx, s.gen, "writing quiz", llm.Request{
		Instructions: quizInstructions,
		Prompt:       "Create the quiz for this script. Return JSON only.\n\nScript:\n" + transcript,
	})
}
