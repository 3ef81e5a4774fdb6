// Package profiles reads and updates the learner data a generation run is
// personalized from.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/killallgit/audiolingu-api/internal/models"
)

const (
	DefaultPastSummaries = 10
	MaxPastSummaries     = 50
	DefaultFeedbackLimit = 50
	MaxFeedbackLimit     = 100

	DefaultEpisodeDuration = 5
	maxEpisodeDuration     = 30
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrProfileIncomplete = errors.New("learning profile incomplete")
	ErrInvalidSettings   = errors.New("invalid settings")
)

// SupportedLanguages are the target languages episodes can be written in
var SupportedLanguages = []string{"es", "fr", "de", "it", "pt", "ja", "ko", "zh"}

// ProficiencyLevels are the CEFR levels a profile can target
var ProficiencyLevels = []string{"A1", "A2", "B1", "B2", "C1"}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Snapshot is the read-only view of a learner taken at the start of a run
type Snapshot struct {
	UserID           uint     `json:"user_id"`
	Email            string   `json:"email"`
	FirstName        string   `json:"first_name"`
	TargetLanguage   string   `json:"target_language"`
	ProficiencyLevel string   `json:"proficiency_level"`
	EpisodeDuration  int      `json:"episode_duration"`
	Interests        []string `json:"interests"`
	PreferredVoiceID string   `json:"preferred_voice_id,omitempty"`
	InternalPrompt   string   `json:"internal_prompt,omitempty"`
	DailyEpisodes    bool     `json:"daily_episodes"`
	EmailOptOut      bool     `json:"email_opt_out"`
}

// Validate checks the fields a script cannot be written without
func (s *Snapshot) Validate() error {
	if s.TargetLanguage == "" {
		return fmt.Errorf("%w: target language is required", ErrProfileIncomplete)
	}
	if s.ProficiencyLevel == "" {
		return fmt.Errorf("%w: proficiency level is required", ErrProfileIncomplete)
	}
	return nil
}

// EpisodeSummary is a past episode's title and summary, used to avoid repeats
type EpisodeSummary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// FeedbackEntry is one rated episode
type FeedbackEntry struct {
	EpisodeID        uint      `json:"episode_id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	Transcript       string    `json:"transcript"`
	Language         string    `json:"language"`
	ProficiencyLevel string    `json:"proficiency_level"`
	DurationSeconds  *float64  `json:"duration_seconds,omitempty"`
	Rating           string    `json:"feedback"`
	Comment          string    `json:"feedback_comment,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Identity is the verified caller as reported by the identity provider
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// SettingsUpdate changes learner settings. Nil fields are left unchanged.
// A non-nil Interests replaces the interest list.
type SettingsUpdate struct {
	TargetLanguage   *string  `json:"target_language,omitempty"`
	ProficiencyLevel *string  `json:"proficiency_level,omitempty"`
	EpisodeDuration  *int     `json:"episode_duration,omitempty"`
	PreferredVoiceID *string  `json:"preferred_voice_id,omitempty"`
	DailyEpisodes    *bool    `json:"daily_episodes,omitempty"`
	EmailOptOut      *bool    `json:"email_opt_out,omitempty"`
	Interests        []string `json:"interests,omitempty"`
}

// Validate rejects unsupported languages, levels, durations and slugs
func (u SettingsUpdate) Validate() error {
	if u.TargetLanguage != nil && !contains(SupportedLanguages, *u.TargetLanguage) {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidSettings, *u.TargetLanguage)
	}
	if u.ProficiencyLevel != nil && !contains(ProficiencyLevels, *u.ProficiencyLevel) {
		return fmt.Errorf("%w: unsupported proficiency level %q", ErrInvalidSettings, *u.ProficiencyLevel)
	}
	if u.EpisodeDuration != nil && (*u.EpisodeDuration < 1 || *u.EpisodeDuration > maxEpisodeDuration) {
		return fmt.Errorf("%w: episode duration must be between 1 and %d minutes", ErrInvalidSettings, maxEpisodeDuration)
	}
	for _, slug := range u.Interests {
		if !slugPattern.MatchString(slug) {
			return fmt.Errorf("%w: invalid interest %q", ErrInvalidSettings, slug)
		}
	}
	return nil
}

// Service is the profile store
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ClampLimit bounds a caller-supplied limit. Zero or negative means def.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// GetUser loads one user row
func (s *Service) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// LoadSnapshot reads the user, the active learning profile and the interest
// slugs. A missing profile yields an empty language and level; callers that
// need them call Validate.
func (s *Service) LoadSnapshot(ctx context.Context, userID uint) (*Snapshot, error) {
	var (
		user      *models.User
		profile   models.LearningProfile
		hasProf   bool
		interests []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.GetUser(gctx, userID)
		user = u
		return err
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where("user_id = ? AND active = ?", userID, true).
			First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting learning profile: %w", err)
		}
		hasProf = true
		return nil
	})
	g.Go(func() error {
		var err error
		interests, err = s.interestSlugs(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		UserID:           user.ID,
		Email:            user.Email,
		FirstName:        user.FirstName,
		EpisodeDuration:  DefaultEpisodeDuration,
		Interests:        interests,
		PreferredVoiceID: user.PreferredVoiceID,
		InternalPrompt:   user.InternalPrompt,
		DailyEpisodes:    user.DailyEpisodes,
		EmailOptOut:      user.EmailOptOut,
	}
	if hasProf {
		snap.TargetLanguage = profile.TargetLanguage
		snap.ProficiencyLevel = profile.ProficiencyLevel
		if profile.EpisodeDuration > 0 {
			snap.EpisodeDuration = profile.EpisodeDuration
		}
	}
	return snap, nil
}

func (s *Service) interestSlugs(ctx context.Context, userID uint) ([]string, error) {
	slugs := []string{}
	err := s.db.WithContext(ctx).
		Model(&models.UserInterest{}).
		Joins("JOIN topics ON topics.id = user_interests.topic_id").
		Where("user_interests.user_id = ?", userID).
		Order("user_interests.weight DESC, topics.slug ASC").
		Pluck("topics.slug", &slugs).Error
	if err != nil {
		return nil, fmt.Errorf("getting interests: %w", err)
	}
	return slugs, nil
}

// PastSummaries returns the newest episodes' titles and summaries
func (s *Service) PastSummaries(ctx context.Context, userID uint, limit int) ([]EpisodeSummary, error) {
	limit = ClampLimit(limit, DefaultPastSummaries, MaxPastSummaries)

	var rows []models.Episode
	err := s.db.WithContext(ctx).
		Select("title", "summary").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("getting past summaries: %w", err)
	}

	out := make([]EpisodeSummary, 0, len(rows))
	for _, e := range rows {
		out = append(out, EpisodeSummary{Title: e.Title, Summary: e.Summary})
	}
	return out, nil
}

// FeedbackData returns the newest rated episodes
func (s *Service) FeedbackData(ctx context.Context, userID uint, limit int) ([]FeedbackEntry, error) {
	limit = ClampLimit(limit, DefaultFeedbackLimit, MaxFeedbackLimit)

	var rows []models.Episode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND feedback_rating <> ''", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("getting feedback data: %w", err)
	}

	out := make([]FeedbackEntry, 0, len(rows))
	for _, e := range rows {
		out = append(out, FeedbackEntry{
			EpisodeID:        e.ID,
			Title:            e.Title,
			Summary:          e.Summary,
			Transcript:       e.Transcript,
			Language:         e.Language,
			ProficiencyLevel: e.ProficiencyLevel,
			DurationSeconds:  e.DurationSeconds,
			Rating:           string(e.FeedbackRating),
			Comment:          e.FeedbackComment,
			CreatedAt:        e.CreatedAt,
		})
	}
	return out, nil
}

// SetInternalPrompt stores the writer guidance learned from feedback
func (s *Service) SetInternalPrompt(ctx context.Context, userID uint, prompt string) error {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("internal_prompt", strings.TrimSpace(prompt))
	if res.Error != nil {
		return fmt.Errorf("updating internal prompt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return nil
}

// EligibleUsers returns users opted in to daily episodes who have not opted
// out of email, oldest first
func (s *Service) EligibleUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("daily_episodes = ? AND email_opt_out = ?", true, false).
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("listing eligible users: %w", err)
	}
	return users, nil
}

// EnsureUser returns the user for an identity, creating it on first sight
func (s *Service) EnsureUser(ctx context.Context, id Identity) (*models.User, error) {
	if strings.TrimSpace(id.Subject) == "" {
		return nil, fmt.Errorf("identity subject is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("auth_subject = ?", id.Subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	first, last := splitName(id.Name)
	user = models.User{
		AuthSubject: id.Subject,
		Email:       id.Email,
		FirstName:   first,
		LastName:    last,
	}
	// A concurrent first request may have created the row already
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "auth_subject"}}, DoNothing: true}).
		Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if user.ID == 0 {
		if err := s.db.WithContext(ctx).Where("auth_subject = ?", id.Subject).First(&user).Error; err != nil {
			return nil, fmt.Errorf("reloading user: %w", err)
		}
	}
	return &user, nil
}

// UpdateSettings applies a settings change and returns the new snapshot
func (s *Service) UpdateSettings(ctx context.Context, userID uint, upd SettingsUpdate) (*Snapshot, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userFields := map[string]any{}
		if upd.PreferredVoiceID != nil {
			userFields["preferred_voice_id"] = strings.TrimSpace(*upd.PreferredVoiceID)
		}
		if upd.DailyEpisodes != nil {
			userFields["daily_episodes"] = *upd.DailyEpisodes
		}
		if upd.EmailOptOut != nil {
			userFields["email_opt_out"] = *upd.EmailOptOut
		}
		if len(userFields) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(userFields).Error; err != nil {
				return fmt.Errorf("updating user: %w", err)
			}
		}

		if upd.TargetLanguage != nil || upd.ProficiencyLevel != nil || upd.EpisodeDuration != nil {
			if err := upsertProfile(tx, userID, upd); err != nil {
				return err
			}
		}

		if upd.Interests != nil {
			if err := replaceInterests(tx, userID, upd.Interests); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.LoadSnapshot(ctx, userID)
}

func upsertProfile(tx *gorm.DB, userID uint, upd SettingsUpdate) error {
	var profile models.LearningProfile
	err := tx.Where("user_id = ?", userID).First(&profile).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("getting learning profile: %w", err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.LearningProfile{UserID: userID, EpisodeDuration: DefaultEpisodeDuration}
	}

	profile.Active = true
	if upd.TargetLanguage != nil {
		profile.TargetLanguage = *upd.TargetLanguage
	}
	if upd.ProficiencyLevel != nil {
		profile.ProficiencyLevel = *upd.ProficiencyLevel
	}
	if upd.EpisodeDuration != nil {
		profile.EpisodeDuration = *upd.EpisodeDuration
	}
	if err := tx.Save(&profile).Error; err != nil {
		return fmt.Errorf("saving learning profile: %w", err)
	}
	return nil
}

func replaceInterests(tx *gorm.DB, userID uint, slugs []string) error {
	if err := tx.Where("user_id = ?", userID).Delete(&models.UserInterest{}).Error; err != nil {
		return fmt.Errorf("clearing interests: %w", err)
	}
	seen := map[string]bool{}
	for _, slug := range slugs {
		if seen[slug] {
			continue
		}
		seen[slug] = true

		topic := models.Topic{Slug: slug}
		if err := tx.Where(models.Topic{Slug: slug}).
			Attrs(models.Topic{Label: TopicLabel(slug)}).
			FirstOrCreate(&topic).Error; err != nil {
			return fmt.Errorf("ensuring topic %s: %w", slug, err)
		}
		link := models.UserInterest{UserID: userID, TopicID: topic.ID, Weight: 1}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("linking interest %s: %w", slug, err)
		}
	}
	return nil
}

// TopicLabel turns a slug like "world_cuisine" into "World Cuisine"
func TopicLabel(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
