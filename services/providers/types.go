package providers

import (
	"errors"
	"fmt"
	"lyrics-sync-go/services/lyrics"
	"math"
	"strings"
)

// SourceID names one logical lyrics source. A provider may serve several
// sources from a single fetch (e.g. word and line granularity).
type SourceID string

const (
	SourceTTMLWord     SourceID = "ttml-word"
	SourceTTMLLine     SourceID = "ttml-line"
	SourceKugouSynced  SourceID = "kugou-synced"
	SourceLRCLibSynced SourceID = "lrclib-synced"
	SourceLRCLibPlain  SourceID = "lrclib-plain"
	SourceLegacySynced SourceID = "legacy-synced"
	SourceLocalSynced  SourceID = "local-synced"
	SourceHostPlain    SourceID = "host-plain"
)

// ErrNoLyrics is returned by a provider that answered but has nothing for
// the track. It does not count against the provider's circuit breaker.
var ErrNoLyrics = errors.New("no lyrics found")

// Params identifies the track being looked up.
type Params struct {
	Song            string
	Artist          string
	Album           string
	DurationSeconds float64
	MediaID         string
	// ReferenceLyrics is plain text supplied by the host page, if any.
	ReferenceLyrics string
}

// DurationMs returns the duration in whole milliseconds.
func (p Params) DurationMs() int64 {
	return int64(math.Round(p.DurationSeconds * 1000))
}

// CacheKey builds a stable key for the (song, artist, album, duration, media) tuple.
func (p Params) CacheKey() string {
	return fmt.Sprintf("lyrics:%s|%s|%s|%d|%s",
		strings.ToLower(strings.TrimSpace(p.Song)),
		strings.ToLower(strings.TrimSpace(p.Artist)),
		strings.ToLower(strings.TrimSpace(p.Album)),
		int64(math.Round(p.DurationSeconds)),
		p.MediaID)
}

// TrackInfo is the catalog's view of a track, used to correct host metadata.
type TrackInfo struct {
	Song       string `json:"song"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// Apply returns p with any non-empty fields of t substituted.
func (t *TrackInfo) Apply(p Params) Params {
	if t == nil {
		return p
	}
	if t.Song != "" {
		p.Song = t.Song
	}
	if t.Artist != "" {
		p.Artist = t.Artist
	}
	if t.Album != "" {
		p.Album = t.Album
	}
	if t.DurationMs > 0 {
		p.DurationSeconds = float64(t.DurationMs) / 1000
	}
	return p
}

// Result is what one source produced for one query.
type Result struct {
	Document      *lyrics.Document
	SourceLabel   string
	SourceLink    string
	VideoTimeline bool
	Cacheable     bool
	// Track is set by sources that matched a catalog entry.
	Track *TrackInfo
}

// HasLines reports whether the result carries at least one line.
func (r *Result) HasLines() bool {
	return r != nil && r.Document != nil && len(r.Document.Lines) > 0
}

// Language returns the document language, if known.
func (r *Result) Language() string {
	if r == nil || r.Document == nil {
		return ""
	}
	return r.Document.Language
}

// ProviderError represents an error from a provider with additional context
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError
func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// IsRTLLanguage checks if a language code is right-to-left
func IsRTLLanguage(langCode string) bool {
	if i := strings.IndexAny(langCode, "-_"); i > 0 {
		langCode = langCode[:i]
	}
	rtlLanguages := map[string]bool{
		"ar": true, // Arabic
		"fa": true, // Persian (Farsi)
		"he": true, // Hebrew
		"ur": true, // Urdu
		"ps": true, // Pashto
		"sd": true, // Sindhi
		"ug": true, // Uyghur
		"yi": true, // Yiddish
		"ku": true, // Kurdish (some dialects)
		"dv": true, // Divehi (Maldivian)
	}
	return rtlLanguages[strings.ToLower(langCode)]
}
