package result

import "testing"

func TestIsNoise(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"a", true},
		{"aaaaa", true},
		{"...!?", true},
		{"um", true},
		{"Um.", true},
		{"thanks for watching", true},
		{"Hello everyone, this is a test.", false},
		{"ok let's get started", false}, // phrase match is whole-text only
		{"こんにちは、今日は良い天気ですね。", false},
	}
	for _, tt := range tests {
		if got := IsNoise(tt.text); got != tt.want {
			t.Errorf("IsNoise(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
