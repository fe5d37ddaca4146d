package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"lyrics-sync-go/cache"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/reconcile"
	"lyrics-sync-go/services/remap"
	"lyrics-sync-go/services/translate"
	"lyrics-sync-go/stats"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	lyricsTimeout    = 30 * time.Second
	translateTimeout = 10 * time.Second
	maxRemapBodySize = 4 << 20
)

func firstParam(q url.Values, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func getLyrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := providers.Params{
		Song:            firstParam(q, "s", "song", "songName"),
		Artist:          firstParam(q, "a", "artist", "artistName"),
		Album:           firstParam(q, "al", "album", "albumName"),
		MediaID:         firstParam(q, "mediaId", "videoId"),
		ReferenceLyrics: q.Get("ref"),
	}
	if params.Song == "" && params.Artist == "" {
		Respond(w, r).Error(http.StatusUnprocessableEntity, map[string]string{
			"error": "Song name or artist name not provided",
		})
		return
	}
	if d := firstParam(q, "d", "duration"); d != "" {
		seconds, err := strconv.ParseFloat(d, 64)
		if err != nil || seconds < 0 {
			Respond(w, r).Error(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("Invalid duration %q", d),
			})
			return
		}
		params.DurationSeconds = seconds
	}
	mediaIsVideo := parseBool(q.Get("video"))
	opts := translate.Options{TargetLang: q.Get("tl"), Romanize: parseBool(q.Get("roman"))}

	key := params.CacheKey()
	if cached, ok := getCachedLyrics(key); ok {
		stats.Get().RecordCacheHit()
		log.Infof("%s Serving cached lyrics for %q by %q", logcolors.LogCacheLyrics, params.Song, params.Artist)
		writeLyrics(w, r, "HIT", cached, mediaIsVideo, opts)
		return
	}
	stats.Get().RecordCacheMiss()

	if middleware.TierFrom(r.Context()) == middleware.TierCached {
		log.Warnf("%s Cached tier without a cache entry for %q by %q", logcolors.LogCacheLyrics, params.Song, params.Artist)
		w.Header().Set("Retry-After", "60")
		Respond(w, r).SetCacheStatus("MISS").Error(http.StatusTooManyRequests, map[string]string{
			"error":   "Rate limit exceeded. This request requires cached data, but no cache is available for this query.",
			"message": "Please try again later or reduce your request rate.",
		})
		return
	}
	if middleware.AuthModeFrom(r.Context()) == middleware.AuthCacheOnly {
		Respond(w, r).SetCacheStatus("MISS").Error(http.StatusUnauthorized, map[string]string{
			"error":   "API key required",
			"message": "Only cached lyrics are served without a valid X-API-Key header",
		})
		return
	}

	result, coalesced, err := reconcileCoalesced(key, params, mediaIsVideo)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		log.Errorf("%s Lookup for %q by %q failed: %v", logcolors.LogReconcile, params.Song, params.Artist, err)
		Respond(w, r).SetCacheStatus("MISS").Error(status, map[string]string{"error": err.Error()})
		return
	}

	cacheStatus := "MISS"
	if coalesced {
		cacheStatus = "COALESCED"
	}
	writeLyrics(w, r, cacheStatus, result, mediaIsVideo, opts)
}

// reconcileCoalesced runs one reconciliation per key at a time; identical
// concurrent lookups wait for and share the first one's result. The shared
// result must not be modified.
func reconcileCoalesced(key string, params providers.Params, mediaIsVideo bool) (*CachedLyrics, bool, error) {
	req := &InFlightRequest{}
	req.wg.Add(1)
	if existing, loaded := inFlightReqs.LoadOrStore(key, req); loaded {
		other := existing.(*InFlightRequest)
		log.Infof("%s Waiting for in-flight lookup of %s", logcolors.LogCacheLyrics, key)
		other.wg.Wait()
		return other.result, true, other.err
	}
	defer func() {
		inFlightReqs.Delete(key)
		req.wg.Done()
	}()

	// Detached from the first caller so its disconnect does not fail the
	// requests waiting on it.
	ctx, cancel := context.WithTimeout(context.Background(), lyricsTimeout)
	defer cancel()

	outcome, err := engine.Reconcile(ctx, reconcile.Request{Params: params, MediaIsVideo: mediaIsVideo})
	if err != nil {
		req.err = err
		return nil, false, err
	}
	req.result = cachedFromOutcome(outcome)
	setCachedLyrics(key, req.result)
	return req.result, false, nil
}

func writeLyrics(w http.ResponseWriter, r *http.Request, cacheStatus string, c *CachedLyrics, mediaIsVideo bool, opts translate.Options) {
	resp := lyricsResponse(c, mediaIsVideo)
	if c.NotFound {
		resp.Error = "No lyrics found"
		Respond(w, r).SetCacheStatus(cacheStatus).Error(http.StatusNotFound, resp)
		return
	}

	if translator != nil && (opts.TargetLang != "" || opts.Romanize) {
		doc := c.Document.Clone()
		ctx, cancel := context.WithTimeout(r.Context(), translateTimeout)
		defer cancel()
		if err := translate.Fill(ctx, translator, doc, opts); err != nil {
			log.Warnf("%s Serving without translation: %v", logcolors.LogTranslate, err)
		}
		resp.Lyrics = doc
	}

	Respond(w, r).SetCacheStatus(cacheStatus).SetSource(string(c.Source)).JSON(resp)
}

func remapLyrics(w http.ResponseWriter, r *http.Request) {
	var req RemapRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRemapBodySize)).Decode(&req); err != nil {
		Respond(w, r).Error(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("Invalid request body: %v", err),
		})
		return
	}
	if req.Document == nil {
		Respond(w, r).Error(http.StatusBadRequest, map[string]string{"error": "document is required"})
		return
	}
	m, err := remap.NewSegmentMap(req.Segments)
	if err != nil {
		Respond(w, r).Error(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	remapped := remap.Apply(req.Document, m, req.MediaIsVideo)
	if remapped {
		stats.Get().Remaps.Add(1)
	}
	Respond(w, r).JSON(RemapResponse{Remapped: remapped, Lyrics: req.Document})
}

func getProviders(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"order":           providers.OrderStrings(engine.Order),
		"enabled":         providers.Enabled(engine.Order),
		"registered":      engine.Registry.List(),
		"referenceSource": engine.ReferenceSource,
		"metadataSource":  engine.MetadataSource,
		"minSimilarity":   engine.MinSimilarity,
	})
}

// authorized reports whether r carries the admin token. An unset token
// locks the admin endpoints.
func authorized(r *http.Request) bool {
	token := conf.Configuration.CacheAccessToken
	return token != "" && r.Header.Get("Authorization") == token
}

func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			Respond(w, r).Error(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func getCacheDump(w http.ResponseWriter, r *http.Request) {
	dump := make(map[string]CacheDumpEntry)
	persistentCache.Range(func(key string, e cache.Entry) bool {
		dump[key] = CacheDumpEntry{
			Source:     e.Source,
			StoredAt:   e.StoredAt,
			SizeBytes:  len(e.Payload),
			Compressed: e.Compressed,
		}
		return true
	})

	numKeys, sizeInKB := persistentCache.Stats()
	s := stats.Get()
	Respond(w, r).JSON(CacheDumpResponse{
		NumberOfKeys: numKeys,
		SizeInKB:     sizeInKB,
		SizeInMB:     float64(sizeInKB) / 1024,
		Performance: CachePerformance{
			Hits:    s.CacheHits.Load(),
			Misses:  s.CacheMisses.Load(),
			HitRate: s.CacheHitRate(),
		},
		Cache: dump,
	})
}

func backupCache(w http.ResponseWriter, r *http.Request) {
	path, err := persistentCache.Backup()
	if err != nil {
		log.Errorf("%s Failed to create backup: %v", logcolors.LogCacheBackup, err)
		notifier.PublishCacheBackupFailed(err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to create backup: %v", err),
		})
		return
	}
	Respond(w, r).JSON(map[string]string{
		"message":     "Backup created successfully",
		"backup_path": path,
	})
}

func clearCache(w http.ResponseWriter, r *http.Request) {
	path, err := persistentCache.BackupAndClear()
	if err != nil {
		log.Errorf("%s Failed to backup and clear cache: %v", logcolors.LogCacheClear, err)
		notifier.PublishCacheBackupFailed(err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to backup and clear cache: %v", err),
		})
		return
	}
	notifier.PublishCacheCleared(path)
	Respond(w, r).JSON(map[string]string{
		"message":     "Cache cleared successfully",
		"backup_path": path,
	})
}

func pruneCache(w http.ResponseWriter, r *http.Request) {
	n, err := persistentCache.Prune()
	if err != nil {
		Respond(w, r).Error(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	Respond(w, r).JSON(map[string]int{"pruned": n})
}

func listBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := persistentCache.ListBackups()
	if err != nil {
		log.Errorf("%s Failed to list backups: %v", logcolors.LogCacheBackups, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to list backups: %v", err),
		})
		return
	}
	Respond(w, r).JSON(map[string]interface{}{
		"count":   len(backups),
		"backups": backups,
	})
}

func restoreCache(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("backup")
	if name == "" {
		Respond(w, r).Error(http.StatusBadRequest, map[string]string{
			"error": "Missing 'backup' query parameter. Use /cache/backups to list available backups.",
		})
		return
	}
	if err := persistentCache.Restore(name); err != nil {
		log.Errorf("%s Failed to restore from %s: %v", logcolors.LogCacheRestore, name, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]string{
			"error": fmt.Sprintf("Failed to restore from backup: %v", err),
		})
		return
	}

	numKeys, sizeKB := persistentCache.Stats()
	Respond(w, r).JSON(map[string]interface{}{
		"message":       "Cache restored successfully",
		"restored_from": name,
		"keys_restored": numKeys,
		"size_kb":       sizeKB,
	})
}

func getStats(w http.ResponseWriter, r *http.Request) {
	snapshot := stats.Get().Snapshot()
	numKeys, sizeKB := persistentCache.Stats()
	snapshot["store"] = map[string]int{
		"keys":    numKeys,
		"size_kb": sizeKB,
	}
	Respond(w, r).JSON(snapshot)
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	breakers := engine.Registry.BreakerStatuses()
	var open []string
	for _, b := range breakers {
		if b.State == circuitbreaker.StateOpen.String() {
			open = append(open, b.Name)
		}
	}

	enabled := providers.Enabled(engine.Order)
	health := map[string]interface{}{
		"status":  "ok",
		"sources": len(enabled),
	}
	switch {
	case len(enabled) == 0:
		health["status"] = "unhealthy"
		health["error"] = "no lyrics sources enabled"
	case len(open) > 0:
		health["status"] = "degraded"
		health["open_circuits"] = open
	}

	if authorized(r) {
		health["circuit_breakers"] = breakers
		health["order"] = providers.OrderStrings(engine.Order)
	}
	Respond(w, r).JSON(health)
}

func getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"breakers": engine.Registry.BreakerStatuses(),
		"config": map[string]int{
			"threshold":    conf.Configuration.CircuitBreakerThreshold,
			"cooldown_sec": conf.Configuration.CircuitBreakerCooldownSecs,
		},
	})
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	engine.Registry.ResetBreakers()
	log.Infof("%s All circuits reset by admin request", logcolors.LogCircuitBreaker)
	Respond(w, r).JSON(map[string]string{
		"message": "Circuit breakers reset to CLOSED state",
	})
}

func testNotifications(w http.ResponseWriter, r *http.Request) {
	notifiers := setupNotifiers()
	if len(notifiers) == 0 {
		Respond(w, r).Error(http.StatusBadRequest, map[string]interface{}{
			"error": "No notifiers configured. Please configure at least one notifier in your .env file.",
			"help": map[string]string{
				"telegram": "Set NOTIFIER_TELEGRAM_BOT_TOKEN and NOTIFIER_TELEGRAM_CHAT_ID",
				"email":    "Set NOTIFIER_SMTP_HOST, NOTIFIER_TO_EMAIL and the SMTP credentials",
				"ntfy":     "Set NOTIFIER_NTFY_TOPIC",
			},
		})
		return
	}

	numKeys, _ := persistentCache.Stats()
	subject := "Test: lyrics sync alerts"
	message := fmt.Sprintf("Notification setup is working.\n\nSources: %s\nCache keys: %d",
		strings.Join(providers.OrderStrings(engine.Order), ", "), numKeys)

	results := make(map[string]interface{})
	failed := 0
	for _, n := range notifiers {
		name := getNotifierTypeName(n)
		if err := n.Send(subject, message); err != nil {
			results[name] = map[string]string{"status": "failed", "error": err.Error()}
			failed++
			log.Errorf("%s %s failed: %v", logcolors.LogTestNotifications, name, err)
			continue
		}
		results[name] = map[string]string{"status": "success"}
		log.Infof("%s %s sent successfully", logcolors.LogTestNotifications, name)
	}

	resp := map[string]interface{}{
		"message":    "Test notifications sent",
		"total":      len(notifiers),
		"successful": len(notifiers) - failed,
		"failed":     failed,
		"results":    results,
	}
	if failed > 0 {
		Respond(w, r).Error(http.StatusPartialContent, resp)
		return
	}
	Respond(w, r).JSON(resp)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"endpoints": map[string]string{
			"GET /getLyrics":   "s, a, al, d, mediaId, video, ref, tl, roman. Example: /getLyrics?s=Hello&a=Adele&d=295",
			"POST /remap":      `{"document": ..., "segments": [...], "mediaIsVideo": true}`,
			"GET /providers":   "Effective source priority order",
			"GET /health":      "Service health",
			"GET /stats":       "Counters (admin)",
			"GET /cache":       "Cache contents (admin)",
			"/cache/backup":    "Back up the cache (admin)",
			"/cache/backups":   "List backups (admin)",
			"/cache/restore":   "Restore ?backup=name (admin)",
			"/cache/clear":     "Back up and clear (admin)",
			"/cache/prune":     "Delete expired entries (admin)",
			"/circuit-breaker": "Breaker status, /reset to close all (admin)",
		},
	})
}
