package types

import "github.com/killallgit/audiolingu-api/internal/models"

// FeedbackRequest rates an episode
type FeedbackRequest struct {
	Feedback models.FeedbackRating `json:"feedback" binding:"required" example:"good"`
	Comment  string                `json:"comment,omitempty" example:"Slower please"`
}

// ProgressRequest records the listening position
type ProgressRequest struct {
	PositionSeconds *float64 `json:"positionSeconds" binding:"required" example:"42.5"`
	Completed       bool     `json:"completed,omitempty" example:"false"`
}

// SettingsRequest updates learner settings. Omitted fields are unchanged.
type SettingsRequest struct {
	TargetLanguage   *string  `json:"targetLanguage,omitempty" example:"es"`
	ProficiencyLevel *string  `json:"proficiencyLevel,omitempty" example:"B1"`
	EpisodeDuration  *int     `json:"episodeDuration,omitempty" example:"5"`
	PreferredVoiceID *string  `json:"preferredVoiceId,omitempty"`
	DailyEpisodes    *bool    `json:"dailyEpisodes,omitempty"`
	EmailOptOut      *bool    `json:"emailOptOut,omitempty"`
	Interests        []string `json:"interests,omitempty" example:"food,travel"`
}
