package models

import (
	"crypto/rand"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	quizPublicIDPrefix = "quiz_"
	quizPublicIDLength = 16
	urlSafeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
)

// Quiz is a comprehension quiz generated from an episode transcript.
// Quizzes are never edited; regenerating creates a new row.
type Quiz struct {
	gorm.Model
	PublicID  string         `json:"public_id" gorm:"uniqueIndex;not null;size:32"`
	EpisodeID uint           `json:"episode_id" gorm:"not null;index"`
	UserID    uint           `json:"user_id" gorm:"not null;index"`
	Title     string         `json:"title"`
	Questions datatypes.JSON `json:"questions"`
}

// BeforeCreate assigns the public identifier
func (q *Quiz) BeforeCreate(tx *gorm.DB) error {
	if q.PublicID != "" {
		return nil
	}
	id, err := NewQuizPublicID()
	if err != nil {
		return err
	}
	q.PublicID = id
	return nil
}

func (Quiz) TableName() string {
	return "quizzes"
}

// NewQuizPublicID returns "quiz_" followed by 16 random URL-safe characters
func NewQuizPublicID() (string, error) {
	buf := make([]byte, quizPublicIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating quiz id: %w", err)
	}
	// 64 symbols, so masking to 6 bits is uniform
	for i, b := range buf {
		buf[i] = urlSafeAlphabet[b&63]
	}
	return quizPublicIDPrefix + string(buf), nil
}
