package result

import (
	"strings"
	"unicode"
)

// minTextRunes is the minimum hypothesis length worth translating.
const minTextRunes = 2

// noisePhrases lists common ASR hallucinations — filler sounds and broadcast
// boilerplate that streaming recognisers emit on silence or music. Matched
// case-insensitively against the whole (trimmed) hypothesis.
var noisePhrases = []string{
	"um", "uh", "ah", "oh", "eh", "hm", "hmm",
	"yeah", "yep", "okay", "ok",
	"subscribe", "like and subscribe", "thanks for watching",
}

// IsNoise reports whether text is likely an ASR hallucination rather than
// speech: too short, a single repeated rune, punctuation-only, or a known
// filler phrase. Noise partials are dropped before buffering.
func IsNoise(text string) bool {
	text = strings.TrimSpace(text)
	runes := []rune(text)

	if len(runes) < minTextRunes {
		return true
	}

	// A run of one repeated rune ("aaaa", "ㅋㅋㅋ") is never speech.
	if len(runes) >= 3 {
		same := true
		for _, r := range runes[1:] {
			if r != runes[0] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}

	// Require at least one letter or digit in any script.
	hasContent := false
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return true
	}

	lower := strings.ToLower(strings.TrimRight(text, ".?!。？！ "))
	for _, phrase := range noisePhrases {
		if lower == phrase {
			return true
		}
	}
	return false
}
