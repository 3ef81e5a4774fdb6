package types

import (
	"context"

	"github.com/killallgit/audiolingu-api/internal/database"
	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/auth"
	"github.com/killallgit/audiolingu-api/internal/services/episodes"
	"github.com/killallgit/audiolingu-api/internal/services/fanout"
	"github.com/killallgit/audiolingu-api/internal/services/jobs"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/quizzes"
	"github.com/killallgit/audiolingu-api/internal/services/storage"
	"github.com/killallgit/audiolingu-api/internal/services/tts"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// TokenVerifier checks a bearer token
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// UserService resolves and updates the caller's account
type UserService interface {
	EnsureUser(ctx context.Context, id profiles.Identity) (*models.User, error)
	LoadSnapshot(ctx context.Context, userID uint) (*profiles.Snapshot, error)
	UpdateSettings(ctx context.Context, userID uint, upd profiles.SettingsUpdate) (*profiles.Snapshot, error)
}

// Generation starts runs and batches
type Generation interface {
	EnqueueGeneration(ctx context.Context, userID uint) (*models.Job, error)
	EnqueueDaily(ctx context.Context) (*fanout.BatchResult, error)
}

// Dependencies holds all the dependencies needed by handlers
type Dependencies struct {
	DB            *database.DB
	Auth          TokenVerifier
	Users         UserService
	Episodes      *episodes.Service
	Quizzes       *quizzes.Service
	JobService    jobs.Service
	Generation    Generation
	Voices        tts.VoiceSearcher
	Store         storage.ObjectStore
	InternalToken string
	Version       string
	Log           *logger.Logger
}

// Logger returns the configured logger or a no-op one
func (d *Dependencies) Logger() *logger.Logger {
	if d == nil || d.Log == nil {
		return logger.Nop()
	}
	return d.Log
}
