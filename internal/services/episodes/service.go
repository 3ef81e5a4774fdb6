package episodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

const (
	DefaultDraftTitle = "Personalized Episode"

	DefaultRecentLimit = 5
	MaxRecentLimit     = 20
	DefaultPageSize    = 20
	MaxPageSize        = 100

	maxErrorMessage   = 1000
	maxFeedbackLength = 2000
)

// Service owns the episode lifecycle. Generation steps call the setters;
// API handlers call the owner-scoped methods.
type Service struct {
	repository EpisodeRepository
	feedback   FeedbackScheduler
	log        *logger.Logger
}

// ServiceOption is a functional option for configuring the service
type ServiceOption func(*Service)

// WithFeedbackScheduler enables feedback analysis after a rating is saved
func WithFeedbackScheduler(fs FeedbackScheduler) ServiceOption {
	return func(s *Service) {
		s.feedback = fs
	}
}

// WithLogger sets the service logger
func WithLogger(log *logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(repository EpisodeRepository, opts ...ServiceOption) *Service {
	s := &Service{
		repository: repository,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraft inserts the episode row for a new run in generating state. A
// run key that already has an episode gets that episode back, so replaying
// the first step of a run never creates a second row.
func (s *Service) CreateDraft(ctx context.Context, userID uint, language, level, runKey string) (*models.Episode, error) {
	if userID == 0 {
		return nil, NewValidationError("user_id", "is required")
	}
	if runKey != "" {
		existing, err := s.repository.GetEpisodeByRunKey(ctx, runKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.reuseDraft(existing, userID, runKey)
		}
	}

	ep := &models.Episode{
		UserID:           userID,
		Language:         language,
		ProficiencyLevel: level,
		Title:            DefaultDraftTitle,
		Status:           models.EpisodeStatusGenerating,
		RunKey:           runKey,
	}
	if err := s.repository.CreateEpisode(ctx, ep); err != nil {
		// Lost a race with a concurrent attempt of the same run
		if runKey != "" {
			if existing, getErr := s.repository.GetEpisodeByRunKey(ctx, runKey); getErr == nil && existing != nil {
				return s.reuseDraft(existing, userID, runKey)
			}
		}
		return nil, err
	}
	return ep, nil
}

func (s *Service) reuseDraft(ep *models.Episode, userID uint, runKey string) (*models.Episode, error) {
	if ep.UserID != userID {
		return nil, fmt.Errorf("%w: run %s", ErrNotOwner, runKey)
	}
	if ep.Status != models.EpisodeStatusGenerating {
		return nil, fmt.Errorf("%w: episode %d is %s", ErrNotGenerating, ep.ID, ep.Status)
	}
	s.log.Info("Reusing draft episode", "episode_id", ep.ID, "run_key", runKey)
	return ep, nil
}

// Get loads an episode without an ownership check
func (s *Service) Get(ctx context.Context, id uint) (*models.Episode, error) {
	return s.repository.GetEpisodeByID(ctx, id)
}

func (s *Service) SetTranscript(ctx context.Context, id uint, transcript string) error {
	return s.repository.UpdateGenerating(ctx, id, map[string]any{"transcript": transcript})
}

func (s *Service) SetTitleAndSummary(ctx context.Context, id uint, title, summary string) error {
	return s.repository.UpdateGenerating(ctx, id, map[string]any{"title": title, "summary": summary})
}

func (s *Service) SetCoverImage(ctx context.Context, id uint, key string) error {
	return s.repository.UpdateGenerating(ctx, id, map[string]any{"cover_image_key": key})
}

// SetAudio stores the audio key, the raw timing payload and the duration together
func (s *Service) SetAudio(ctx context.Context, id uint, audioKey, alignmentJSON string, durationSeconds float64) error {
	return s.repository.UpdateGenerating(ctx, id, map[string]any{
		"audio_key":          audioKey,
		"aligned_transcript": datatypes.JSON(alignmentJSON),
		"duration_seconds":   durationSeconds,
	})
}

func (s *Service) SetWordAlignments(ctx context.Context, id uint, words []alignment.WordSpan) error {
	raw, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("encoding word alignments: %w", err)
	}
	return s.repository.UpdateGenerating(ctx, id, map[string]any{"word_alignments": datatypes.JSON(raw)})
}

func (s *Service) SetSentenceAlignments(ctx context.Context, id uint, sentences []alignment.SentenceSpan) error {
	raw, err := json.Marshal(sentences)
	if err != nil {
		return fmt.Errorf("encoding sentence alignments: %w", err)
	}
	return s.repository.UpdateGenerating(ctx, id, map[string]any{"sentence_alignments": datatypes.JSON(raw)})
}

// MarkReady publishes the episode
func (s *Service) MarkReady(ctx context.Context, id uint) error {
	return s.repository.UpdateGenerating(ctx, id, map[string]any{
		"status":        models.EpisodeStatusReady,
		"error_message": "",
		"published_at":  time.Now().UTC(),
	})
}

// MarkFailed records a fatal run error. Fields written by earlier steps stay.
// An episode that already reached a terminal status is left as it is.
func (s *Service) MarkFailed(ctx context.Context, id uint, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "generation failed"
	}
	if len(message) > maxErrorMessage {
		message = message[:maxErrorMessage]
	}
	return s.repository.UpdateGenerating(ctx, id, map[string]any{
		"status":        models.EpisodeStatusFailed,
		"error_message": message,
	})
}

// GetForOwner loads an episode only if userID owns it
func (s *Service) GetForOwner(ctx context.Context, userID, id uint) (*models.Episode, error) {
	ep, err := s.repository.GetEpisodeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ep.UserID != userID {
		return nil, fmt.Errorf("%w: episode %d", ErrNotOwner, id)
	}
	return ep, nil
}

// List returns one page of the caller's episodes, newest first
func (s *Service) List(ctx context.Context, userID uint, limit, offset int) ([]models.Episode, int64, error) {
	limit = profiles.ClampLimit(limit, DefaultPageSize, MaxPageSize)
	if offset < 0 {
		offset = 0
	}
	return s.repository.ListByUser(ctx, userID, limit, offset)
}

// Recent returns the caller's newest episodes
func (s *Service) Recent(ctx context.Context, userID uint, limit int) ([]models.Episode, error) {
	limit = profiles.ClampLimit(limit, DefaultRecentLimit, MaxRecentLimit)
	eps, _, err := s.repository.ListByUser(ctx, userID, limit, 0)
	return eps, err
}

// SetFeedback stores the owner's rating on a ready episode and schedules a
// feedback analysis. A failure to schedule is logged, not returned.
func (s *Service) SetFeedback(ctx context.Context, userID, id uint, rating models.FeedbackRating, comment string) (*models.Episode, error) {
	if !rating.Valid() {
		return nil, NewValidationError("feedback", "must be good or bad")
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxFeedbackLength {
		return nil, NewValidationError("feedback_comment", fmt.Sprintf("must be at most %d characters", maxFeedbackLength))
	}

	ep, err := s.GetForOwner(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if ep.Status != models.EpisodeStatusReady {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, ep.Status)
	}

	now := time.Now().UTC()
	if err := s.repository.UpdateFields(ctx, id, map[string]any{
		"feedback_rating":  rating,
		"feedback_comment": comment,
		"feedback_at":      now,
	}); err != nil {
		return nil, err
	}
	ep.FeedbackRating = rating
	ep.FeedbackComment = comment
	ep.FeedbackAt = &now

	if s.feedback != nil {
		if err := s.feedback.ScheduleFeedbackAnalysis(ctx, userID); err != nil {
			s.log.Warn("Failed to schedule feedback analysis", "user_id", userID, "episode_id", id, "error", err)
		}
	}
	return ep, nil
}

// SetProgress records the caller's listening position
func (s *Service) SetProgress(ctx context.Context, userID, id uint, positionSeconds float64, completed bool) (*models.EpisodeProgress, error) {
	if positionSeconds < 0 {
		return nil, NewValidationError("position_seconds", "must not be negative")
	}
	ep, err := s.GetForOwner(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if ep.DurationSeconds != nil && positionSeconds > *ep.DurationSeconds {
		positionSeconds = *ep.DurationSeconds
	}

	progress := &models.EpisodeProgress{
		UserID:          userID,
		EpisodeID:       id,
		PositionSeconds: positionSeconds,
		Completed:       completed,
	}
	if completed {
		now := time.Now().UTC()
		progress.CompletedAt = &now
	}
	if err := s.repository.UpsertProgress(ctx, progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// FailStale fails runs that have not progressed since before cutoff
func (s *Service) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repository.FailStale(ctx, cutoff, "generation timed out")
}
