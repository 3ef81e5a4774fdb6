// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/killallgit/audiolingu-api/internal/database"
	"github.com/killallgit/audiolingu-api/internal/models"
)

// DB returns a migrated in-memory sqlite database
func DB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Initialize(database.Options{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

// UserOptions describes a learner fixture
type UserOptions struct {
	Subject       string
	Email         string
	FirstName     string
	Language      string
	Level         string
	Interests     []string
	VoiceID       string
	DailyEpisodes bool
	EmailOptOut   bool
	NoProfile     bool
}

// CreateUser inserts a user with an active learning profile and interests
func CreateUser(t testing.TB, db *gorm.DB, opts UserOptions) *models.User {
	t.Helper()
	if opts.Subject == "" {
		opts.Subject = "subject-" + opts.FirstName + opts.Email
	}
	if opts.Language == "" {
		opts.Language = "es"
	}
	if opts.Level == "" {
		opts.Level = "B1"
	}

	user := &models.User{
		AuthSubject:      opts.Subject,
		Email:            opts.Email,
		FirstName:        opts.FirstName,
		PreferredVoiceID: opts.VoiceID,
		DailyEpisodes:    opts.DailyEpisodes,
		EmailOptOut:      opts.EmailOptOut,
	}
	require.NoError(t, db.Create(user).Error)

	if !opts.NoProfile {
		require.NoError(t, db.Create(&models.LearningProfile{
			UserID:           user.ID,
			Active:           true,
			TargetLanguage:   opts.Language,
			ProficiencyLevel: opts.Level,
			EpisodeDuration:  5,
		}).Error)
	}

	for _, slug := range opts.Interests {
		topic := models.Topic{Slug: slug, Label: slug}
		require.NoError(t, db.Where(models.Topic{Slug: slug}).FirstOrCreate(&topic).Error)
		require.NoError(t, db.Create(&models.UserInterest{UserID: user.ID, TopicID: topic.ID, Weight: 1}).Error)
	}
	return user
}

// CreateEpisode inserts an episode row for a user
func CreateEpisode(t testing.TB, db *gorm.DB, ep *models.Episode) *models.Episode {
	t.Helper()
	require.NoError(t, db.Create(ep).Error)
	return ep
}
