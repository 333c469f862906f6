package result

import (
	"testing"
	"time"
)

func TestDedupCache_AddSuppressesDuplicates(t *testing.T) {
	c := NewDedupCache(10 * time.Second)

	if !c.Add("Hello everyone, this is a test.") {
		t.Fatal("first add must succeed")
	}
	if c.Add("Hello everyone, this is a test.") {
		t.Error("exact duplicate within TTL must be suppressed")
	}
	if c.Add("  hello   EVERYONE, this is a test. ") {
		t.Error("normalized duplicate (case/whitespace) must be suppressed")
	}
	if !c.Add("a different sentence") {
		t.Error("different text must be accepted")
	}
}

func TestDedupCache_TTLExpiry(t *testing.T) {
	c := NewDedupCache(10 * time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Add("hello")
	if !c.Contains("hello") {
		t.Fatal("entry must be present within TTL")
	}

	now = now.Add(11 * time.Second)
	if c.Contains("hello") {
		t.Error("expired entry must not be reported")
	}
	if !c.Add("hello") {
		t.Error("re-adding after expiry must succeed")
	}
}

func TestDedupCache_LazyPurge(t *testing.T) {
	c := NewDedupCache(time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Add("one")
	c.Add("two")
	now = now.Add(2 * time.Second)
	c.Add("three") // triggers purge of the expired pair

	if c.Len() != 1 {
		t.Errorf("len = %d, want 1 after lazy purge", c.Len())
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Hello  World ", "hello world"},
		{"HELLO\tWORLD\n", "hello world"},
		{"already normal", "already normal"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
