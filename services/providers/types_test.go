package providers

import (
	"errors"
	"lyrics-sync-go/services/lyrics"
	"testing"
)

func TestIsRTLLanguage(t *testing.T) {
	tests := []struct {
		name     string
		langCode string
		expected bool
	}{
		{"Arabic", "ar", true},
		{"Persian/Farsi", "fa", true},
		{"Hebrew", "he", true},
		{"Urdu", "ur", true},
		{"Divehi/Maldivian", "dv", true},
		{"Region subtag", "ar-SA", true},
		{"Underscore subtag", "he_IL", true},
		{"Uppercase", "AR", true},

		{"English", "en", false},
		{"Japanese", "ja", false},
		{"Japanese romanized", "ja-Latn", false},
		{"Empty string", "", false},
		{"Unknown code", "xx", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRTLLanguage(tt.langCode); got != tt.expected {
				t.Errorf("IsRTLLanguage(%q) = %v, expected %v", tt.langCode, got, tt.expected)
			}
		})
	}
}

func TestProviderError(t *testing.T) {
	underlying := errors.New("network error")

	tests := []struct {
		name     string
		err      *ProviderError
		expected string
	}{
		{"With wrapped error", NewProviderError("kugou", "search failed", underlying), "kugou: search failed: network error"},
		{"Without wrapped error", NewProviderError("lrclib", "not found", nil), "lrclib: not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Error() = %q, expected %q", tt.err.Error(), tt.expected)
			}
		})
	}

	wrapped := NewProviderError("ttml", "request failed", underlying)
	if !errors.Is(wrapped, underlying) {
		t.Error("errors.Is should find the underlying error")
	}

	var target *ProviderError
	if !errors.As(error(wrapped), &target) || target.Provider != "ttml" {
		t.Error("errors.As should match ProviderError")
	}

	noLyrics := NewProviderError("lrclib", "lookup", ErrNoLyrics)
	if !errors.Is(noLyrics, ErrNoLyrics) {
		t.Error("Expected ErrNoLyrics to be visible through ProviderError")
	}
}

func TestParams(t *testing.T) {
	p := Params{Song: " Hello ", Artist: "ADELE", Album: "25", DurationSeconds: 295.4996, MediaID: "abc"}

	if p.DurationMs() != 295500 {
		t.Errorf("Expected 295500ms, got %d", p.DurationMs())
	}
	if got := p.CacheKey(); got != "lyrics:hello|adele|25|295|abc" {
		t.Errorf("Unexpected cache key %q", got)
	}
}

func TestTrackInfo_Apply(t *testing.T) {
	p := Params{Song: "helo", Artist: "adel", Album: "", DurationSeconds: 10, MediaID: "m"}

	var nilTrack *TrackInfo
	if nilTrack.Apply(p) != p {
		t.Error("Expected nil track to leave params unchanged")
	}

	got := (&TrackInfo{Song: "Hello", Artist: "Adele", DurationMs: 295000}).Apply(p)
	want := Params{Song: "Hello", Artist: "Adele", Album: "", DurationSeconds: 295, MediaID: "m"}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestResult_HasLines(t *testing.T) {
	var nilResult *Result
	if nilResult.HasLines() {
		t.Error("nil result has no lines")
	}
	if (&Result{}).HasLines() {
		t.Error("result without document has no lines")
	}
	if (&Result{Document: &lyrics.Document{}}).HasLines() {
		t.Error("empty document has no lines")
	}
	r := &Result{Document: &lyrics.Document{Lines: []lyrics.Line{{Text: "x"}}, Language: "en"}}
	if !r.HasLines() || r.Language() != "en" {
		t.Error("Expected lines and language")
	}
}
