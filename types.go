package main

import (
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/remap"
	"sync"
	"time"
)

// CachedLyrics is what the store keeps for a query: the reconciled document
// before any remapping, translation or romanization.
type CachedLyrics struct {
	Source        providers.SourceID `json:"source"`
	SourceLabel   string             `json:"sourceLabel,omitempty"`
	SourceLink    string             `json:"sourceLink,omitempty"`
	Similarity    float64            `json:"similarity"`
	VideoTimeline bool               `json:"videoTimeline,omitempty"`
	Cacheable     bool               `json:"-"`
	NotFound      bool               `json:"-"`
	Document      *lyrics.Document   `json:"lyrics"`
}

// LyricsResponse is the /getLyrics body.
type LyricsResponse struct {
	Source        providers.SourceID     `json:"source,omitempty"`
	SourceLabel   string                 `json:"sourceLabel,omitempty"`
	SourceLink    string                 `json:"sourceLink,omitempty"`
	SyncType      lyrics.SyncGranularity `json:"syncType"`
	Language      string                 `json:"language,omitempty"`
	IsRTLLanguage bool                   `json:"isRtlLanguage"`
	RemapRequired bool                   `json:"remapRequired"`
	Cacheable     bool                   `json:"cacheable"`
	Similarity    float64                `json:"similarity"`
	Lyrics        *lyrics.Document       `json:"lyrics"`
	Error         string                 `json:"error,omitempty"`
}

// RemapRequest is the /remap body.
type RemapRequest struct {
	Document     *lyrics.Document `json:"document"`
	Segments     []remap.Segment  `json:"segments"`
	MediaIsVideo bool             `json:"mediaIsVideo"`
}

// RemapResponse is the /remap answer.
type RemapResponse struct {
	Remapped bool             `json:"remapped"`
	Lyrics   *lyrics.Document `json:"lyrics"`
}

// InFlightRequest lets identical concurrent lookups share one reconciliation.
type InFlightRequest struct {
	wg     sync.WaitGroup
	result *CachedLyrics
	err    error
}

// CacheDumpEntry describes one stored key without its payload.
type CacheDumpEntry struct {
	Source     string    `json:"source"`
	StoredAt   time.Time `json:"storedAt"`
	SizeBytes  int       `json:"sizeBytes"`
	Compressed bool      `json:"compressed"`
}

type CachePerformance struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

type CacheDumpResponse struct {
	NumberOfKeys int                       `json:"numberOfKeys"`
	SizeInKB     int                       `json:"sizeInKB"`
	SizeInMB     float64                   `json:"sizeInMB"`
	Performance  CachePerformance          `json:"performance"`
	Cache        map[string]CacheDumpEntry `json:"cache"`
}
