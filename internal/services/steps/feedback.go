package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/killallgit/audiolingu-api/internal/services/llm"
	"github.com/killallgit/audiolingu-api/internal/services/profiles"
)

const maxCommentInPrompt = 500

// FeedbackInput is a learner and the episodes they rated
type FeedbackInput struct {
	Snapshot *profiles.Snapshot
	Feedback []profiles.FeedbackEntry
}

// FeedbackAnalysisStep rewrites the learner-specific writer guidance from
// their ratings
type FeedbackAnalysisStep struct {
	gen llm.Generator
}

func NewFeedbackAnalysisStep(gen llm.Generator) *FeedbackAnalysisStep {
	return &FeedbackAnalysisStep{gen: gen}
}

// Run returns the new guidance. With no rated episodes it returns the current
// guidance unchanged without calling the generator.
func (s *FeedbackAnalysisStep) Run(ctx context.Context, in FeedbackInput) (string, error) {
	if in.Snapshot == nil {
		return "", fmt.Errorf("feedback analysis: snapshot is required")
	}
	if len(in.Feedback) == 0 {
		return in.Snapshot.InternalPrompt, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Learner: %s, level %s, episodes of about %d minutes.\n",
		LanguageName(in.Snapshot.TargetLanguage), in.Snapshot.ProficiencyLevel, in.Snapshot.EpisodeDuration)
	if len(in.Snapshot.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(in.Snapshot.Interests, ", "))
	}
	b.WriteString("\nCurrent guidance:\n")
	if g := strings.TrimSpace(in.Snapshot.InternalPrompt); g != "" {
		b.WriteString(g)
	} else {
		b.WriteString("(none)")
	}
	b.WriteString("\n\nRated episodes, newest first:\n")
	for i, f := range in.Feedback {
		fmt.Fprintf(&b, "%d. [%s] %s: %s", i+1, f.Rating, CollapseWhitespace(f.Title), CollapseWhitespace(f.Summary))
		if f.DurationSeconds != nil {
			fmt.Fprintf(&b, " (%.0f seconds)", *f.DurationSeconds)
		}
		if c := CollapseWhitespace(f.Comment); c != "" {
			if r := []rune(c); len(r) > maxCommentInPrompt {
				c = string(r[:maxCommentInPrompt])
			}
			fmt.Fprintf(&b, "\n   Comment: %s", c)
		}
		b.WriteString("\n")
	}

	return generate(ctx, s.gen, "analyzing feedback", llm.Request{
		Instructions: feedbackInstructions,
		Prompt:       strings.TrimSpace(b.String()),
	})
}
