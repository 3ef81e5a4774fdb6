package generation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/killallgit/audiolingu-api/internal/models"
	"github.com/killallgit/audiolingu-api/internal/services/alignment"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
	"github.com/killallgit/audiolingu-api/internal/services/steps"
	"github.com/killallgit/audiolingu-api/internal/services/workflow"
)

// EpisodeWriter is the episode lifecycle the run drives
type EpisodeWriter interface {
	CreateDraft(ctx context.Context, userID uint, language, level, runKey string) (*models.Episode, error)
	SetTranscript(ctx context.Context, id uint, transcript string) error
	SetTitleAndSummary(ctx context.Context, id uint, title, summary string) error
	SetCoverImage(ctx context.Context, id uint, key string) error
	SetAudio(ctx context.Context, id uint, audioKey, alignmentJSON string, durationSeconds float64) error
	SetWordAlignments(ctx context.Context, id uint, words []alignment.WordSpan) error
	SetSentenceAlignments(ctx context.Context, id uint, sentences []alignment.SentenceSpan) error
	MarkReady(ctx context.Context, id uint) error
	MarkFailed(ctx context.Context, id uint, message string) error
}

// SnapshotLoader reads the learner profile a run starts from
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, userID uint) (*profiles.Snapshot, error)
}

// Deps are the collaborators of the podcast steps
type Deps struct {
	Profiles    SnapshotLoader
	Episodes    EpisodeWriter
	Script      *steps.ScriptStep
	Title       *steps.TitleStep
	Summary     *steps.SummaryStep
	ImagePrompt *steps.ImagePromptStep
	Cover       *steps.CoverImageStep
	Speech      *steps.SpeechStep
}

// Steps declares the podcast run. Cover art is optional; every other step
// fails the run.
func Steps(d Deps) []workflow.Step[State] {
	return []workflow.Step[State]{
		{Name: StepCreateDraft, Fatal: true, Run: d.createDraft},
		{Name: StepGenerateScript, Fatal: true, Run: d.generateScript},
		{Name: StepTitleSummary, Fatal: true, Run: d.titleAndSummary},
		{Name: StepBuildImagePrompt, Fatal: false, Run: d.buildImagePrompt},
		{Name: StepGenerateCover, Fatal: false, Run: d.generateCover},
		{Name: StepSynthesizeSpeech, Fatal: true, Run: d.synthesizeSpeech},
		{Name: StepWordAlignments, Fatal: true, Run: d.wordAlignments},
		{Name: StepSentenceAlignments, Fatal: true, Run: d.sentenceAlignments},
		{Name: StepFinalize, Fatal: true, Run: d.finalize},
	}
}

func (d Deps) createDraft(ctx context.Context, s *State) error {
	snap, err := d.Profiles.LoadSnapshot(ctx, s.UserID)
	if err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	ep, err := d.Episodes.CreateDraft(ctx, s.UserID, snap.TargetLanguage, snap.ProficiencyLevel, RunKey(s.JobID))
	if err != nil {
		return err
	}
	s.EpisodeID = ep.ID
	s.Language = snap.TargetLanguage
	s.Level = snap.ProficiencyLevel
	s.VoiceID = snap.PreferredVoiceID
	return nil
}

func (d Deps) generateScript(ctx context.Context, s *State) error {
	transcript, err := d.Script.Run(ctx, s.UserID)
	if err != nil {
		return err
	}
	if err := d.Episodes.SetTranscript(ctx, s.EpisodeID, transcript); err != nil {
		return err
	}
	s.Transcript = transcript
	return nil
}

func (d Deps) titleAndSummary(ctx context.Context, s *State) error {
	var title, summary string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		title, err = d.Title.Run(gctx, s.Transcript)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = d.Summary.Run(gctx, s.Transcript)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := d.Episodes.SetTitleAndSummary(ctx, s.EpisodeID, title, summary); err != nil {
		return err
	}
	s.Title, s.Summary = title, summary
	return nil
}

func (d Deps) buildImagePrompt(ctx context.Context, s *State) error {
	prompt, err := d.ImagePrompt.Run(ctx, s.Transcript)
	if err != nil {
		return err
	}
	s.ImagePrompt = prompt
	return nil
}

func (d Deps) generateCover(ctx context.Context, s *State) error {
	if s.ImagePrompt == "" {
		return nil
	}
	res, err := d.Cover.Run(ctx, s.ImagePrompt)
	if err != nil {
		return err
	}
	if !res.Generated {
		return nil
	}
	if err := d.Episodes.SetCoverImage(ctx, s.EpisodeID, res.Key); err != nil {
		return err
	}
	s.CoverKey, s.CoverGenerated = res.Key, true
	return nil
}

func (d Deps) synthesizeSpeech(ctx context.Context, s *State) error {
	res, err := d.Speech.Run(ctx, steps.SpeechInput{Transcript: s.Transcript, VoiceID: s.VoiceID})
	if err != nil {
		return err
	}
	if err := d.Episodes.SetAudio(ctx, s.EpisodeID, res.AudioKey, res.AlignmentJSON, res.DurationSeconds); err != nil {
		return err
	}
	s.AudioKey = res.AudioKey
	s.AlignmentJSON = res.AlignmentJSON
	s.DurationSeconds = res.DurationSeconds
	return nil
}

func (s *State) payload() (alignment.Payload, error) {
	if s.AlignmentJSON == "" {
		return alignment.Payload{}, fmt.Errorf("no speech timing recorded")
	}
	return alignment.ParsePayload(s.AlignmentJSON)
}

func (d Deps) wordAlignments(ctx context.Context, s *State) error {
	p, err := s.payload()
	if err != nil {
		return err
	}
	words := alignment.Words(p)
	if err := d.Episodes.SetWordAlignments(ctx, s.EpisodeID, words); err != nil {
		return err
	}
	s.WordCount = len(words)
	return nil
}

func (d Deps) sentenceAlignments(ctx context.Context, s *State) error {
	p, err := s.payload()
	if err != nil {
		return err
	}
	sentences := alignment.FilterEmptySentences(alignment.Sentences(p))
	if err := d.Episodes.SetSentenceAlignments(ctx, s.EpisodeID, sentences); err != nil {
		return err
	}
	s.SentenceCount = len(sentences)
	return nil
}

func (d Deps) finalize(ctx context.Context, s *State) error {
	return d.Episodes.MarkReady(ctx, s.EpisodeID)
}
