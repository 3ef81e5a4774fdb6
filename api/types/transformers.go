package types

import (
	"context"
	"encoding/json"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/storage"
	"github.com/killallgit/audiolingu-api/pkg/logger"
)

// FromEpisode builds the client view of an episode. Detail adds the
// transcript and alignments, which list views leave out. A key that fails
// to resolve is logged and left empty.
func FromEpisode(ctx context.Context, ep *models.Episode, store storage.ObjectStore, log *logger.Logger, detail bool) *Episode {
	if ep == nil {
		return nil
	}
	out := &Episode{
		ID:               ep.ID,
		Title:            ep.Title,
		Summary:          ep.Summary,
		Language:         ep.Language,
		ProficiencyLevel: ep.ProficiencyLevel,
		Status:           string(ep.Status),
		ErrorMessage:     ep.ErrorMessage,
		DurationSeconds:  ep.DurationSeconds,
		Feedback:         string(ep.FeedbackRating),
		FeedbackComment:  ep.FeedbackComment,
		CreatedAt:        ep.CreatedAt,
		PublishedAt:      ep.PublishedAt,
	}
	out.CoverImageURL = resolve(ctx, store, log, ep.CoverImageKey)
	out.AudioURL = resolve(ctx, store, log, ep.AudioKey)

	if detail {
		out.Transcript = ep.Transcript
		if len(ep.WordAlignments) > 0 {
			var words []alignment.WordSpan
			if err := json.Unmarshal(ep.WordAlignments, &words); err == nil {
				out.WordAlignments = words
			}
		}
		if len(ep.SentenceAlignments) > 0 {
			var sentences []alignment.SentenceSpan
			if err := json.Unmarshal(ep.SentenceAlignments, &sentences); err == nil {
				out.SentenceAlignments = sentences
			}
		}
	}
	return out
}

// FromEpisodes transforms a list without the detail fields
func FromEpisodes(ctx context.Context, eps []models.Episode, store storage.ObjectStore, log *logger.Logger) []Episode {
	out := make([]Episode, 0, len(eps))
	for i := range eps {
		out = append(out, *FromEpisode(ctx, &eps[i], store, log, false))
	}
	return out
}

func resolve(ctx context.Context, store storage.ObjectStore, log *logger.Logger, key string) string {
	if key == "" || store == nil {
		return ""
	}
	u, err := store.ResolveURL(ctx, key)
	if err != nil {
		log.Warn("Failed to resolve media URL", "key", key, "error", err)
		return ""
	}
	return u
}

// FromSnapshot builds the profile view
func FromSnapshot(s *profiles.Snapshot) *Profile {
	if s == nil {
		return nil
	}
	interests := s.Interests
	if interests == nil {
		interests = []string{}
	}
	return &Profile{
		UserID:           s.UserID,
		Email:            s.Email,
		FirstName:        s.FirstName,
		TargetLanguage:   s.TargetLanguage,
		ProficiencyLevel: s.ProficiencyLevel,
		EpisodeDuration:  s.EpisodeDuration,
		Interests:        interests,
		PreferredVoiceID: s.PreferredVoiceID,
		DailyEpisodes:    s.DailyEpisodes,
		EmailOptOut:      s.EmailOptOut,
		ProfileComplete:  s.Validate() == nil,
	}
}

// ToSettingsUpdate maps the request onto the profile update
func (r SettingsRequest) ToSettingsUpdate() profiles.SettingsUpdate {
	return profiles.SettingsUpdate{
		TargetLanguage:   r.TargetLanguage,
		ProficiencyLevel: r.ProficiencyLevel,
		EpisodeDuration:  r.EpisodeDuration,
		PreferredVoiceID: r.PreferredVoiceID,
		DailyEpisodes:    r.DailyEpisodes,
		EmailOptOut:      r.EmailOptOut,
		Interests:        r.Interests,
	}
}

// FromJob builds the job status view
func FromJob(job *models.Job) JobResponse {
	return JobResponse{
		BaseResponse: BaseResponse{Status: StatusOK},
		JobID:        job.ID,
		JobStatus:    string(job.Status),
		Progress:     job.Progress,
		Result:       job.Result,
		Error:        job.Error,
	}
}
