// Package prosody turns detected speech dynamics into SSML prosody markup
// for synthesis. The generated document nests rate around volume around an
// optional emphasis wrapper, so downstream voices inherit the broadest cue
// first.
package prosody

import "strings"

// Volume levels as detected by the audio analyzer.
const (
	VolumeWhisper = "whisper"
	VolumeSoft    = "soft"
	VolumeNormal  = "normal"
	VolumeLoud    = "loud"
)

// emphasisIntensity is the minimum intensity at which a high-arousal
// emotion earns strong emphasis.
const emphasisIntensity = 0.7

// Dynamics captures the emotional delivery of a transcript segment.
type Dynamics struct {
	// Emotion is the dominant detected emotion (e.g., "angry", "sad",
	// "neutral").
	Emotion string

	// Intensity is the emotion's strength in [0, 1].
	Intensity float64

	// RateWpm is the measured speaking rate in words per minute.
	RateWpm float64

	// VolumeLevel is one of the Volume* constants.
	VolumeLevel string
}

// escaper rewrites the five XML-special characters. Ampersand first so
// already-escaped output is not double-escaped into nonsense.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape makes text safe for embedding in the SSML document.
func Escape(text string) string {
	return escaper.Replace(text)
}

// rateLabel buckets a words-per-minute measurement into an SSML rate.
func rateLabel(wpm float64) string {
	switch {
	case wpm < 120:
		return "slow"
	case wpm < 170:
		return "medium"
	case wpm < 200:
		return "fast"
	default:
		return "x-fast"
	}
}

// volumeLabel maps a detected volume level to its SSML volume. Unknown
// levels fall back to medium.
func volumeLabel(level string) string {
	switch level {
	case VolumeWhisper:
		return "x-soft"
	case VolumeSoft:
		return "soft"
	case VolumeNormal:
		return "medium"
	case VolumeLoud:
		return "loud"
	default:
		return "medium"
	}
}

// Generate renders text into an SSML document reflecting d. The text is
// escaped; rate wraps volume wraps the innermost emphasis or break.
//
// High-arousal emotions (angry, excited, surprised) at intensity ≥ 0.7 get
// strong emphasis. Low-arousal emotions (sad, fearful) get a 300ms leading
// break instead. Everything else renders unwrapped inside the prosody
// elements.
func Generate(text string, d Dynamics) string {
	inner := Escape(text)

	switch d.Emotion {
	case "angry", "excited", "surprised":
		if d.Intensity >= emphasisIntensity {
			inner = `<emphasis level="strong">` + inner + `</emphasis>`
		}
	case "sad", "fearful":
		inner = `<break time="300ms"/>` + inner
	}

	var b strings.Builder
	b.WriteString(`<speak><prosody rate="`)
	b.WriteString(rateLabel(d.RateWpm))
	b.WriteString(`"><prosody volume="`)
	b.WriteString(volumeLabel(d.VolumeLevel))
	b.WriteString(`">`)
	b.WriteString(inner)
	b.WriteString(`</prosody></prosody></speak>`)
	return b.String()
}
