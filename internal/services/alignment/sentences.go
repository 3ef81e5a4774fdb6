package alignment

import "strings"

const terminators = ".!?…"

func isTerminator(ch string) bool {
	return strings.ContainsAny(ch, terminators)
}

// Sentences splits the character stream at terminators. A sentence ends at
// the most recent finite end time; the next one starts at the following
// character's start, or at that end time when the start is missing. A
// sentence none of whose characters carry a finite time is dropped.
func Sentences(p Payload) []SentenceSpan {
	chars, starts, ends := p.effective()
	sentences := make([]SentenceSpan, 0)
	if len(chars) == 0 {
		return sentences
	}

	sentenceStart := 0.0
	if isFinite(starts[0]) {
		sentenceStart = starts[0]
	}
	lastValidEnd := sentenceStart

	var buf strings.Builder
	timed := false
	for i, ch := range chars {
		if isFinite(ends[i]) {
			lastValidEnd = ends[i]
			timed = true
		}
		if isFinite(starts[i]) {
			timed = true
		}
		buf.WriteString(ch)
		if !isTerminator(ch) {
			continue
		}

		if text := strings.TrimSpace(buf.String()); text != "" && timed {
			sentences = append(sentences, SentenceSpan{Text: text, Start: sentenceStart, End: lastValidEnd})
		}
		buf.Reset()
		timed = false

		if i+1 < len(starts) && isFinite(starts[i+1]) {
			sentenceStart = starts[i+1]
		} else {
			sentenceStart = lastValidEnd
		}
	}

	if tail := strings.TrimSpace(buf.String()); tail != "" && timed {
		sentences = append(sentences, SentenceSpan{Text: tail, Start: sentenceStart, End: lastValidEnd})
	}
	return sentences
}

// FilterEmptySentences drops sentences that hold nothing but whitespace and
// terminators, or whose times are not finite.
func FilterEmptySentences(in []SentenceSpan) []SentenceSpan {
	out := make([]SentenceSpan, 0, len(in))
	for _, s := range in {
		cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
			if strings.ContainsRune(terminators, r) {
				return -1
			}
			return r
		}, s.Text))
		if cleaned == "" || !isFinite(s.Start) || !isFinite(s.End) {
			continue
		}
		out = append(out, s)
	}
	return out
}
