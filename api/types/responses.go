package types

import (
	"time"

	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/services/quizzes"
	"github.com/killallgit/audiolingu-api/internal/services/tts"
)

// Status constants for API responses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// BaseResponse contains fields common to all API responses
type BaseResponse struct {
	Status  string `json:"status"`            // One of the Status constants above
	Message string `json:"message,omitempty"` // Human-readable message
}

// ErrorResponse for detailed error information
type ErrorResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`   // Error code
	Details interface{} `json:"details,omitempty"` // Additional error details
}

// Episode is the client view of a generated episode. Media keys are
// resolved to URLs.
type Episode struct {
	ID                 uint                     `json:"id"`
	Title              string                   `json:"title"`
	Summary            string                   `json:"summary,omitempty"`
	Language           string                   `json:"language"`
	ProficiencyLevel   string                   `json:"proficiencyLevel"`
	Status             string                   `json:"status"`
	ErrorMessage       string                   `json:"errorMessage,omitempty"`
	Transcript         string                   `json:"transcript,omitempty"`
	CoverImageURL      string                   `json:"coverImageUrl,omitempty"`
	AudioURL           string                   `json:"audioUrl,omitempty"`
	DurationSeconds    *float64                 `json:"durationSeconds,omitempty"`
	WordAlignments     []alignment.WordSpan     `json:"wordAlignments,omitempty"`
	SentenceAlignments []alignment.SentenceSpan `json:"sentenceAlignments,omitempty"`
	Feedback           string                   `json:"feedback,omitempty"`
	FeedbackComment    string                   `json:"feedbackComment,omitempty"`
	CreatedAt          time.Time                `json:"createdAt"`
	PublishedAt        *time.Time               `json:"publishedAt,omitempty"`
}

// EpisodesResponse for episode lists
type EpisodesResponse struct {
	BaseResponse
	Episodes []Episode `json:"episodes"`
	Count    int       `json:"count"`           // Number of results in this response
	Total    int64     `json:"total,omitempty"` // Total available (if known)
	Offset   int       `json:"offset,omitempty"`
}

// SingleEpisodeResponse for getting a single episode
type SingleEpisodeResponse struct {
	BaseResponse
	Episode *Episode `json:"episode"`
}

// JobResponse for async job status
type JobResponse struct {
	BaseResponse
	JobID     uint                   `json:"jobId"`
	JobStatus string                 `json:"jobStatus"`
	Progress  int                    `json:"progress"` // 0-100
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// QuizResponse wraps a stored quiz
type QuizResponse struct {
	BaseResponse
	Quiz *quizzes.Record `json:"quiz"`
}

// ProgressResponse echoes the stored position
type ProgressResponse struct {
	BaseResponse
	EpisodeID       uint    `json:"episodeId"`
	PositionSeconds float64 `json:"positionSeconds"`
	Completed       bool    `json:"completed"`
}

// Profile is the caller's account and learning settings
type Profile struct {
	UserID           uint     `json:"userId"`
	Email            string   `json:"email"`
	FirstName        string   `json:"firstName"`
	TargetLanguage   string   `json:"targetLanguage"`
	ProficiencyLevel string   `json:"proficiencyLevel"`
	EpisodeDuration  int      `json:"episodeDuration"`
	Interests        []string `json:"interests"`
	PreferredVoiceID string   `json:"preferredVoiceId,omitempty"`
	DailyEpisodes    bool     `json:"dailyEpisodes"`
	EmailOptOut      bool     `json:"emailOptOut"`
	ProfileComplete  bool     `json:"profileComplete"`
}

// ProfileResponse for /me
type ProfileResponse struct {
	BaseResponse
	Profile *Profile `json:"profile"`
}

// VoicesResponse for voice search
type VoicesResponse struct {
	BaseResponse
	Voices  []tts.Voice `json:"voices"`
	HasMore bool        `json:"hasMore"`
}

// BatchResponse for the internal batch trigger
type BatchResponse struct {
	BaseResponse
	Eligible int `json:"eligible"`
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}
