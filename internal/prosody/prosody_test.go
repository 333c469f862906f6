package prosody

import (
	"strings"
	"testing"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a & b`, `a &amp; b`},
		{`<tag>`, `&lt;tag&gt;`},
		{`"quoted" and 'single'`, `&quot;quoted&quot; and &apos;single&apos;`},
		{`plain text`, `plain text`},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRateLabel(t *testing.T) {
	tests := []struct {
		wpm  float64
		want string
	}{
		{80, "slow"},
		{119.9, "slow"},
		{120, "medium"},
		{169, "medium"},
		{170, "fast"},
		{199, "fast"},
		{200, "x-fast"},
		{300, "x-fast"},
	}
	for _, tt := range tests {
		if got := rateLabel(tt.wpm); got != tt.want {
			t.Errorf("rateLabel(%v) = %q, want %q", tt.wpm, got, tt.want)
		}
	}
}

func TestVolumeLabel(t *testing.T) {
	tests := []struct {
		level, want string
	}{
		{VolumeWhisper, "x-soft"},
		{VolumeSoft, "soft"},
		{VolumeNormal, "medium"},
		{VolumeLoud, "loud"},
		{"", "medium"},
		{"shouting", "medium"},
	}
	for _, tt := range tests {
		if got := volumeLabel(tt.level); got != tt.want {
			t.Errorf("volumeLabel(%q) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestGenerate_Nesting(t *testing.T) {
	got := Generate("hello", Dynamics{RateWpm: 150, VolumeLevel: VolumeNormal})
	want := `<speak><prosody rate="medium"><prosody volume="medium">hello</prosody></prosody></speak>`
	if got != want {
		t.Errorf("Generate = %q, want %q", got, want)
	}
}

func TestGenerate_StrongEmphasis(t *testing.T) {
	got := Generate("watch out", Dynamics{
		Emotion: "angry", Intensity: 0.8, RateWpm: 210, VolumeLevel: VolumeLoud,
	})
	want := `<speak><prosody rate="x-fast"><prosody volume="loud"><emphasis level="strong">watch out</emphasis></prosody></prosody></speak>`
	if got != want {
		t.Errorf("Generate = %q, want %q", got, want)
	}
}

func TestGenerate_EmphasisRequiresIntensity(t *testing.T) {
	got := Generate("mildly annoyed", Dynamics{
		Emotion: "angry", Intensity: 0.5, RateWpm: 150, VolumeLevel: VolumeNormal,
	})
	if strings.Contains(got, "<emphasis") {
		t.Errorf("emphasis must require intensity >= 0.7: %q", got)
	}
}

func TestGenerate_SadBreak(t *testing.T) {
	got := Generate("i miss it", Dynamics{
		Emotion: "sad", Intensity: 0.9, RateWpm: 100, VolumeLevel: VolumeSoft,
	})
	want := `<speak><prosody rate="slow"><prosody volume="soft"><break time="300ms"/>i miss it</prosody></prosody></speak>`
	if got != want {
		t.Errorf("Generate = %q, want %q", got, want)
	}
}

func TestGenerate_EscapesTextInsideMarkup(t *testing.T) {
	got := Generate(`cats & <dogs>`, Dynamics{RateWpm: 150, VolumeLevel: VolumeNormal})
	if !strings.Contains(got, "cats &amp; &lt;dogs&gt;") {
		t.Errorf("text must be escaped inside markup: %q", got)
	}
	if strings.Contains(got, "<dogs>") {
		t.Errorf("raw angle brackets leaked: %q", got)
	}
}
