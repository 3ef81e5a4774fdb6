package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an authenticated learner. AuthSubject is the identity provider's subject claim.
type User struct {
	gorm.Model
	AuthSubject      string `json:"-" gorm:"uniqueIndex;not null;size:255"`
	Email            string `json:"email" gorm:"index;size:320"`
	FirstName        string `json:"first_name" gorm:"size:100"`
	LastName         string `json:"last_name" gorm:"size:100"`
	PreferredVoiceID string `json:"preferred_voice_id" gorm:"size:64"`
	InternalPrompt   string `json:"-" gorm:"type:text"` // Learned writer guidance from feedback analysis
	DailyEpisodes    bool   `json:"daily_episodes" gorm:"default:false;index"`
	EmailOptOut      bool   `json:"email_opt_out" gorm:"default:false"`

	Profile   *LearningProfile `json:"profile,omitempty" gorm:"foreignKey:UserID"`
	Interests []UserInterest   `json:"interests,omitempty" gorm:"foreignKey:UserID"`
}

// LearningProfile holds the language and level an episode is written for
type LearningProfile struct {
	gorm.Model
	UserID           uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	Active           bool   `json:"active" gorm:"default:true"`
	TargetLanguage   string `json:"target_language" gorm:"size:8"`
	ProficiencyLevel string `json:"proficiency_level" gorm:"size:2"`
	EpisodeDuration  int    `json:"episode_duration" gorm:"default:5"` // Minutes
}

// Topic is a catalog entry learners can pick as an interest
type Topic struct {
	gorm.Model
	Slug  string `json:"slug" gorm:"uniqueIndex;not null;size:64"`
	Label string `json:"label" gorm:"size:128"`
}

// UserInterest links a user to a topic
type UserInterest struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_user_topic"`
	TopicID   uint      `json:"topic_id" gorm:"not null;uniqueIndex:idx_user_topic"`
	Weight    float64   `json:"weight" gorm:"default:1"`
	Topic     Topic     `json:"topic" gorm:"foreignKey:TopicID"`
}

// EpisodeProgress is a user's listening position within an episode
type EpisodeProgress struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	UserID          uint       `json:"user_id" gorm:"not null;uniqueIndex:idx_progress_user_episode"`
	EpisodeID       uint       `json:"episode_id" gorm:"not null;uniqueIndex:idx_progress_user_episode"`
	PositionSeconds float64    `json:"position_seconds"`
	Completed       bool       `json:"completed" gorm:"default:false"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (EpisodeProgress) TableName() string {
	return "episode_progress"
}

// All returns every model managed by migrations
func All() []any {
	return []any{
		&User{},
		&LearningProfile{},
		&Topic{},
		&UserInterest{},
		&Episode{},
		&EpisodeProgress{},
		&Quiz{},
		&StepCheckpoint{},
		&Job{},
	}
}
