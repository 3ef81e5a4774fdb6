package alignment

import (
	"strings"
	"unicode"
)

// wordRunes lists the non-ASCII letters counted as word characters:
// Latin-1 and Latin Extended-A letters, Romanian comma-below letters,
// Cyrillic and Greek base alphabets, CJK ideographs with 々〆〤, and Hangul.
var wordRunes = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00C0, Hi: 0x00D6, Stride: 1},
		{Lo: 0x00D8, Hi: 0x00F6, Stride: 1},
		{Lo: 0x00F8, Hi: 0x017E, Stride: 1},
		{Lo: 0x0218, Hi: 0x021B, Stride: 1},
		{Lo: 0x0391, Hi: 0x03A9, Stride: 1},
		{Lo: 0x03B1, Hi: 0x03C9, Stride: 1},
		{Lo: 0x0410, Hi: 0x044F, Stride: 1},
		{Lo: 0x3005, Hi: 0x3006, Stride: 1},
		{Lo: 0x3024, Hi: 0x3024, Stride: 1},
		{Lo: 0x4E00, Hi: 0x9FAF, Stride: 1},
		{Lo: 0xAC00, Hi: 0xD7A3, Stride: 1},
	},
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// IsWordCharacter reports whether ch belongs inside a word. A single ASCII
// letter or digit qualifies, as does any entry containing a listed letter.
func IsWordCharacter(ch string) bool {
	if ch == "" {
		return false
	}
	if len(ch) == 1 && isASCIIAlnum(rune(ch[0])) {
		return true
	}
	for _, r := range ch {
		if unicode.Is(wordRunes, r) {
			return true
		}
	}
	return false
}

func isDelimiter(ch string) bool {
	return !IsWordCharacter(ch) || strings.IndexFunc(ch, unicode.IsSpace) >= 0
}

// Words groups consecutive word characters into spans. Delimiters and
// characters without finite timing end the current word.
func Words(p Payload) []WordSpan {
	chars, starts, ends := p.effective()
	words := make([]WordSpan, 0)

	var (
		current   strings.Builder
		wordStart float64
		wordEnd   float64
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		words = append(words, WordSpan{Word: current.String(), Start: wordStart, End: wordEnd})
		current.Reset()
	}

	for i, ch := range chars {
		if isDelimiter(ch) || !isFinite(starts[i]) || !isFinite(ends[i]) {
			flush()
			continue
		}
		if current.Len() == 0 {
			wordStart = starts[i]
		}
		current.WriteString(ch)
		wordEnd = ends[i]
	}
	flush()

	return words
}
