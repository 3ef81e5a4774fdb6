// Package generation defines the podcast run: the declared step list, the
// state it threads through, and the orchestrator that executes it locally or
// on Temporal.
package generation

import (
	"fmt"
)

// Step names in execution order
const (
	StepCreateDraft        = "create_draft"
	StepGenerateScript     = "generate_script"
	StepTitleSummary       = "generate_title_summary"
	StepBuildImagePrompt   = "build_image_prompt"
	StepGenerateCover      = "generate_cover_image"
	StepSynthesizeSpeech   = "synthesize_speech"
	StepWordAlignments     = "derive_word_alignments"
	StepSentenceAlignments = "derive_sentence_alignments"
	StepFinalize           = "finalize"
)

// StepNames lists the declared steps in execution order
var StepNames = []string{
	StepCreateDraft,
	StepGenerateScript,
	StepTitleSummary,
	StepBuildImagePrompt,
	StepGenerateCover,
	StepSynthesizeSpeech,
	StepWordAlignments,
	StepSentenceAlignments,
	StepFinalize,
}

// State is carried from step to step and checkpointed after each one
type State struct {
	JobID     uint `json:"job_id"`
	UserID    uint `json:"user_id"`
	EpisodeID uint `json:"episode_id,omitempty"`

	Language string `json:"language,omitempty"`
	Level    string `json:"level,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`

	Transcript  string `json:"transcript,omitempty"`
	Title       string `json:"title,omitempty"`
	Summary     string `json:"summary,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty"`

	CoverKey       string `json:"cover_key,omitempty"`
	CoverGenerated bool   `json:"cover_generated"`

	AudioKey        string  `json:"audio_key,omitempty"`
	AlignmentJSON   string  `json:"alignment_json,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`

	WordCount     int `json:"word_count"`
	SentenceCount int `json:"sentence_count"`
}

// RunKey identifies the checkpoints of the run started by a job
func RunKey(jobID uint) string {
	return fmt.Sprintf("podcast:%d", jobID)
}
