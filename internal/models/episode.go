package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EpisodeStatus is the lifecycle state of a generated episode
type EpisodeStatus string

const (
	EpisodeStatusDraft      EpisodeStatus = "draft"
	EpisodeStatusQueued     EpisodeStatus = "queued"
	EpisodeStatusGenerating EpisodeStatus = "generating"
	EpisodeStatusReady      EpisodeStatus = "ready"
	EpisodeStatusFailed     EpisodeStatus = "failed"
)

// IsTerminal returns true once content can no longer change
func (s EpisodeStatus) IsTerminal() bool {
	return s == EpisodeStatusReady || s == EpisodeStatusFailed
}

// FeedbackRating is the learner's verdict on an episode
type FeedbackRating string

const (
	FeedbackGood FeedbackRating = "good"
	FeedbackBad  FeedbackRating = "bad"
)

// Valid reports whether the rating is one of the accepted values
func (r FeedbackRating) Valid() bool {
	return r == FeedbackGood || r == FeedbackBad
}

// Episode is one generated audio lesson. Content fields are filled in by
// the generation run, one field group per step.
type Episode struct {
	gorm.Model
	UserID uint `json:"user_id" gorm:"not null;index"`

	// Profile snapshot taken when the draft is created
	Language         string `json:"language" gorm:"size:8"`
	ProficiencyLevel string `json:"proficiency_level" gorm:"size:2"`

	Title              string         `json:"title"`
	Summary            string         `json:"summary" gorm:"type:text"`
	Transcript         string         `json:"transcript" gorm:"type:text"`
	AlignedTranscript  datatypes.JSON `json:"aligned_transcript,omitempty"`
	WordAlignments     datatypes.JSON `json:"word_alignments,omitempty"`
	SentenceAlignments datatypes.JSON `json:"sentence_alignments,omitempty"`
	CoverImageKey      string         `json:"cover_image_key,omitempty" gorm:"size:255"`
	AudioKey           string         `json:"audio_key,omitempty" gorm:"size:255"`
	DurationSeconds    *float64       `json:"duration_seconds,omitempty"`

	Status       EpisodeStatus `json:"status" gorm:"size:20;default:draft;index"`
	ErrorMessage string        `json:"error_message,omitempty" gorm:"size:1000"`
	RunKey       string        `json:"run_key,omitempty" gorm:"size:128;uniqueIndex:idx_episodes_run_key,where:run_key <> ''"`

	FeedbackRating  FeedbackRating `json:"feedback_rating,omitempty" gorm:"size:8"`
	FeedbackComment string         `json:"feedback_comment,omitempty" gorm:"type:text"`
	FeedbackAt      *time.Time     `json:"feedback_at,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// BeforeCreate defaults the status of a new episode
func (e *Episode) BeforeCreate(tx *gorm.DB) error {
	if e.Status == "" {
		e.Status = EpisodeStatusDraft
	}
	return nil
}

func (Episode) TableName() string {
	return "episodes"
}

// HasFeedback returns true when the owner has rated the episode
func (e *Episode) HasFeedback() bool {
	return e.FeedbackRating != ""
}
