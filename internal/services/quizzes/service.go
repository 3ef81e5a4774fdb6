package quizzes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// Writer turns a transcript into raw quiz JSON
type Writer interface {
	Run(ctx context.Context, transcript string) (string, error)
}

// EpisodeLoader resolves an episode the caller owns
type EpisodeLoader interface {
	GetForOwner(ctx context.Context, userID, id uint) (*models.Episode, error)
}

// Record is a stored quiz with its decoded questions
type Record struct {
	PublicID  string     `json:"publicId"`
	EpisodeID uint       `json:"episodeId"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

type Service struct {
	db       *gorm.DB
	episodes EpisodeLoader
	writer   Writer
	log      *logger.Logger
}

func NewService(db *gorm.DB, episodes EpisodeLoader, writer Writer, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: db, episodes: episodes, writer: writer, log: log}
}

// GenerateForEpisode writes a new quiz from the episode transcript and stores
// it. Nothing is persisted when the generated quiz fails validation.
func (s *Service) GenerateForEpisode(ctx context.Context, userID, episodeID uint) (*Record, error) {
	ep, err := s.episodes.GetForOwner(ctx, userID, episodeID)
	if err != nil {
		return nil, err
	}
	transcript := strings.TrimSpace(ep.Transcript)
	if transcript == "" {
		return nil, fmt.Errorf("%w: episode %d", ErrNoTranscript, episodeID)
	}

	raw, err := s.writer.Run(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("generating quiz: %w", err)
	}
	quiz, err := Parse(raw, ep.Title)
	if err != nil {
		s.log.Warn("Rejected generated quiz", "episode_id", episodeID, "error", err)
		return nil, err
	}

	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return nil, fmt.Errorf("encoding questions: %w", err)
	}
	row := &models.Quiz{
		EpisodeID: ep.ID,
		UserID:    ep.UserID,
		Title:     quiz.Title,
		Questions: questions,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("saving quiz: %w", err)
	}

	s.log.Info("Quiz created", "episode_id", episodeID, "public_id", row.PublicID, "questions", len(quiz.Questions))
	return &Record{
		PublicID:  row.PublicID,
		EpisodeID: row.EpisodeID,
		Title:     row.Title,
		Questions: quiz.Questions,
	}, nil
}

// GetByPublicID reads a quiz without an ownership check. Share links use it.
func (s *Service) GetByPublicID(ctx context.Context, publicID string) (*Record, error) {
	var row models.Quiz
	err := s.db.WithContext(ctx).Where("public_id = ?", publicID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("getting quiz: %w", err)
	}
	return toRecord(&row)
}

// LatestForEpisode returns the most recently updated quiz of an owned episode
func (s *Service) LatestForEpisode(ctx context.Context, userID, episodeID uint) (*Record, error) {
	if _, err := s.episodes.GetForOwner(ctx, userID, episodeID); err != nil {
		return nil, err
	}
	var row models.Quiz
	err := s.db.WithContext(ctx).
		Where("episode_id = ?", episodeID).
		Order("updated_at DESC, id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("getting latest quiz: %w", err)
	}
	return toRecord(&row)
}

func toRecord(row *models.Quiz) (*Record, error) {
	rec := &Record{
		PublicID:  row.PublicID,
		EpisodeID: row.EpisodeID,
		Title:     row.Title,
		Questions: []Question{},
	}
	if len(row.Questions) > 0 {
		if err := json.Unmarshal(row.Questions, &rec.Questions); err != nil {
			return nil, fmt.Errorf("decoding quiz %s: %w", row.PublicID, err)
		}
	}
	return rec, nil
}
