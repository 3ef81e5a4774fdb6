// Package alignment turns character-level speech timing into word and
// sentence spans. Every function here is pure and deterministic.
package alignment

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Payload is character-level timing as returned by the speech provider
type Payload struct {
	Characters []string  `json:"characters"`
	Starts     []float64 `json:"character_start_times_seconds"`
	Ends       []float64 `json:"character_end_times_seconds"`
}

// WordSpan is one word and the time range it is spoken in
type WordSpan struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SentenceSpan is one sentence and the time range it is spoken in
type SentenceSpan struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

var (
	startKeys = []string{"character_start_times_seconds", "characterStartTimesSeconds"}
	endKeys   = []string{"character_end_times_seconds", "characterEndTimesSeconds"}
)

// ParsePayload decodes a stored alignment document. Both snake_case and
// camelCase timing keys are accepted. Timing entries that are not numbers
// become NaN so the segmenters treat them as missing.
func ParsePayload(raw string) (Payload, error) {
	if strings.TrimSpace(raw) == "" {
		return Payload{}, fmt.Errorf("alignment payload is empty")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return Payload{}, fmt.Errorf("decoding alignment payload: %w", err)
	}

	return Payload{
		Characters: decodeCharacters(obj["characters"]),
		Starts:     decodeTimes(firstArray(obj, startKeys)),
		Ends:       decodeTimes(firstArray(obj, endKeys)),
	}, nil
}

// JSON renders the payload in its canonical snake_case form.
// Non-finite times are written as null and parse back as NaN.
func (p Payload) JSON() (string, error) {
	out := struct {
		Characters []string   `json:"characters"`
		Starts     []*float64 `json:"character_start_times_seconds"`
		Ends       []*float64 `json:"character_end_times_seconds"`
	}{
		Characters: nonNil(p.Characters),
		Starts:     nullable(p.Starts),
		Ends:       nullable(p.Ends),
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Duration is the largest finite end time, or 0 when there is none
func Duration(p Payload) float64 {
	max := 0.0
	for _, e := range p.Ends {
		if isFinite(e) && e > max {
			max = e
		}
	}
	return max
}

// effective returns the three arrays truncated to their common length
func (p Payload) effective() ([]string, []float64, []float64) {
	n := len(p.Characters)
	if len(p.Starts) < n {
		n = len(p.Starts)
	}
	if len(p.Ends) < n {
		n = len(p.Ends)
	}
	return p.Characters[:n], p.Starts[:n], p.Ends[:n]
}

func firstArray(obj map[string]json.RawMessage, keys []string) []json.RawMessage {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err == nil {
			return arr
		}
	}
	return nil
}

// decodeCharacters treats a missing or non-array value as an empty list
func decodeCharacters(raw json.RawMessage) []string {
	var arr []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &arr) != nil {
		return []string{}
	}
	out := make([]string, len(arr))
	for i, item := range arr {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out[i] = s
			continue
		}
		out[i] = string(item)
	}
	return out
}

func decodeTimes(arr []json.RawMessage) []float64 {
	out := make([]float64, len(arr))
	for i, item := range arr {
		out[i] = decodeTime(item)
	}
	return out
}

func decodeTime(item json.RawMessage) float64 {
	// null would otherwise decode as 0
	if strings.TrimSpace(string(item)) == "null" {
		return math.NaN()
	}
	var f float64
	if err := json.Unmarshal(item, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return math.NaN()
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullable(in []float64) []*float64 {
	out := make([]*float64, len(in))
	for i := range in {
		if isFinite(in[i]) {
			v := in[i]
			out[i] = &v
		}
	}
	return out
}
