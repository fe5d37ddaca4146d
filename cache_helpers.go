package main

import (
	"context"
	"encoding/json"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/reconcile"
	"time"

	log "github.com/sirupsen/logrus"
)

// getCachedLyrics looks key up in the persistent store.
func getCachedLyrics(key string) (*CachedLyrics, bool) {
	if persistentCache == nil {
		return nil, false
	}
	entry, ok := persistentCache.Get(key)
	if !ok {
		return nil, false
	}

	var cached CachedLyrics
	if err := json.Unmarshal([]byte(entry.Payload), &cached); err != nil {
		log.Warnf("%s Dropping unreadable entry %s: %v", logcolors.LogCacheLyrics, key, err)
		persistentCache.Delete(key)
		return nil, false
	}
	if cached.Document == nil || len(cached.Document.Lines) == 0 {
		return nil, false
	}
	cached.Cacheable = true
	return &cached, true
}

// setCachedLyrics stores c under key. Non-cacheable results and the
// no-lyrics sentinel are never stored.
func setCachedLyrics(key string, c *CachedLyrics) {
	if persistentCache == nil || c == nil || !c.Cacheable || c.NotFound || c.Document.IsNotFound() {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		log.Errorf("%s Error marshaling %s: %v", logcolors.LogCacheLyrics, key, err)
		return
	}
	if err := persistentCache.Put(key, string(c.Source), string(data)); err != nil {
		log.Errorf("%s Error storing %s: %v", logcolors.LogCacheLyrics, key, err)
		return
	}
	log.Infof("%s Stored %s from %s", logcolors.LogCacheLyrics, key, c.Source)
}

// cachedFromOutcome flattens a reconciliation outcome for storage.
func cachedFromOutcome(o *reconcile.Outcome) *CachedLyrics {
	c := &CachedLyrics{
		Source:     o.Source,
		Similarity: o.Similarity,
		Cacheable:  o.Cacheable,
		NotFound:   o.NotFound,
		Document:   o.Document(),
	}
	if res := o.Result; res != nil {
		c.SourceLabel = res.SourceLabel
		c.SourceLink = res.SourceLink
		c.VideoTimeline = res.VideoTimeline
	}
	return c
}

// lyricsResponse builds the API body for c as seen by media of the given
// timeline kind.
func lyricsResponse(c *CachedLyrics, mediaIsVideo bool) LyricsResponse {
	resp := LyricsResponse{
		Source:        c.Source,
		SourceLabel:   c.SourceLabel,
		SourceLink:    c.SourceLink,
		SyncType:      c.Document.SyncGranularity(),
		Language:      c.Document.Language,
		IsRTLLanguage: providers.IsRTLLanguage(c.Document.Language),
		Cacheable:     c.Cacheable,
		Similarity:    c.Similarity,
		Lyrics:        c.Document,
	}
	if !c.NotFound {
		resp.RemapRequired = mediaIsVideo != c.VideoTimeline
	}
	return resp
}

// startCachePruner deletes expired entries every interval until ctx is done.
func startCachePruner(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := persistentCache.Prune(); err != nil {
					log.Warnf("%s Prune failed: %v", logcolors.LogCache, err)
				}
			}
		}
	}()
}
