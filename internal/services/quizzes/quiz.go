package quizzes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	DefaultTitle = "Episode Quiz"

	MinChoices = 3
	MaxChoices = 5
)

var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrNoTranscript = errors.New("episode has no transcript")
	ErrInvalidQuiz  = errors.New("invalid quiz")
)

// Question is one multiple-choice item
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Quiz is the parsed wire shape returned by the quiz writer
type Quiz struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

type rawQuestion struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Choices      []string `json:"choices"`
	CorrectIndex *int     `json:"correctIndex"`
	Explanation  *string  `json:"explanation"`
}

type rawQuiz struct {
	Title     string        `json:"title"`
	Questions []rawQuestion `json:"questions"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuiz, fmt.Sprintf(format, args...))
}

// Parse decodes and validates quiz JSON. A surrounding markdown code fence is
// removed first. fallbackTitle is used when the quiz has no title, and
// DefaultTitle when that is empty too.
func Parse(raw, fallbackTitle string) (*Quiz, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, invalid("empty response")
	}

	var rq rawQuiz
	if err := json.Unmarshal([]byte(body), &rq); err != nil {
		return nil, invalid("not valid JSON: %v", err)
	}

	q := &Quiz{Title: strings.TrimSpace(rq.Title)}
	if q.Title == "" {
		q.Title = strings.TrimSpace(fallbackTitle)
	}
	if q.Title == "" {
		q.Title = DefaultTitle
	}

	q.Questions = make([]Question, 0, len(rq.Questions))
	for i, r := range rq.Questions {
		if r.CorrectIndex == nil {
			return nil, invalid("question %d has no correctIndex", i+1)
		}
		item := Question{
			ID:           strings.TrimSpace(r.ID),
			Prompt:       strings.TrimSpace(r.Prompt),
			Choices:      r.Choices,
			CorrectIndex: *r.CorrectIndex,
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("q%d", i+1)
		}
		if r.Explanation != nil {
			item.Explanation = strings.TrimSpace(*r.Explanation)
		}
		q.Questions = append(q.Questions, item)
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks the structural rules every stored quiz must satisfy
func (q *Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return invalid("no questions")
	}
	seenIDs := make(map[string]bool, len(q.Questions))
	seenPrompts := make(map[string]int, len(q.Questions))
	for i, item := range q.Questions {
		n := i + 1
		if item.Prompt == "" {
			return invalid("question %d has an empty prompt", n)
		}
		if len(item.Choices) < MinChoices || len(item.Choices) > MaxChoices {
			return invalid("question %d has %d choices, want %d to %d", n, len(item.Choices), MinChoices, MaxChoices)
		}
		for j, c := range item.Choices {
			if strings.TrimSpace(c) == "" {
				return invalid("question %d choice %d is empty", n, j+1)
			}
		}
		if item.CorrectIndex < 0 || item.CorrectIndex >= len(item.Choices) {
			return invalid("question %d correctIndex %d out of range", n, item.CorrectIndex)
		}
		if seenIDs[item.ID] {
			return invalid("duplicate question id %q", item.ID)
		}
		seenIDs[item.ID] = true

		key := normalizePrompt(item.Prompt)
		if prev, ok := seenPrompts[key]; ok {
			return invalid("question %d duplicates question %d", n, prev)
		}
		seenPrompts[key] = n
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string, e.g. "json"
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// normalizePrompt folds case, punctuation and spacing so near-identical
// prompts compare equal
func normalizePrompt(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
