package main

import (
	"context"
	"lyrics-sync-go/cache"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/middleware"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/providers/local"
	"lyrics-sync-go/stats"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

func getNotifierTypeName(n notifier.Notifier) string {
	switch n.(type) {
	case *notifier.EmailNotifier:
		return "email"
	case *notifier.TelegramNotifier:
		return "telegram"
	case *notifier.NtfyNotifier:
		return "ntfy"
	default:
		return "unknown"
	}
}

func setupNotifiers() []notifier.Notifier {
	c := conf.Configuration
	notifiers := notifier.Build(notifier.Options{
		NtfyTopic:        c.NotifierTopic,
		NtfyServer:       c.NotifierServer,
		TelegramBotToken: c.TelegramBotToken,
		TelegramChatID:   c.TelegramChatID,
		SMTPHost:         c.NotifierSMTPHost,
		SMTPPort:         c.NotifierSMTPPort,
		SMTPUsername:     c.NotifierSMTPUsername,
		SMTPPassword:     c.NotifierSMTPPassword,
		FromEmail:        c.NotifierFromEmail,
		ToEmail:          c.NotifierToEmail,
	})
	for _, n := range notifiers {
		log.Infof("%s %s notifier enabled", logcolors.LogNotifier, getNotifierTypeName(n))
	}
	return notifiers
}

// startAlertHandler forwards warning and critical bus events to the
// configured notifiers.
func startAlertHandler() {
	notifiers := setupNotifiers()
	if len(notifiers) == 0 {
		log.Infof("%s No notifiers configured, alerts disabled", logcolors.LogNotifier)
		return
	}
	notifier.NewAlertHandler(notifier.AlertConfig{
		Notifiers:   notifiers,
		MinSeverity: notifier.SeverityWarning,
	}).Start(notifier.GetEventBus())
}

func openCache() (*cache.Store, error) {
	c := conf.Configuration
	store, err := cache.Open(c.CacheDBPath, c.CacheBackupPath, cache.Options{
		Compress: conf.FeatureFlags.CacheCompression,
		MaxAge:   time.Duration(c.CacheMaxAgeDays) * 24 * time.Hour,
	})
	if err != nil {
		notifier.PublishServerStartupFailed("cache", err)
		return nil, err
	}
	return store, nil
}

func openStatsStore() *stats.Store {
	store, err := stats.NewStore(conf.Configuration.StatsDBPath, stats.Get())
	if err != nil {
		log.Warnf("%s Stats will not persist: %v", logcolors.LogStats, err)
		return nil
	}
	if err := store.Load(); err != nil {
		log.Warnf("%s Failed to load saved stats: %v", logcolors.LogStats, err)
	}
	store.StartAutoSave(5 * time.Minute)
	return store
}

// startLocalWatcher keeps the local lyrics index current.
func startLocalWatcher(ctx context.Context) {
	if local.Default == nil || conf.Configuration.LocalLyricsDir == "" {
		return
	}
	go func() {
		if err := local.Default.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("%s Watcher stopped: %v", logcolors.LogWatcher, err)
			notifier.PublishLocalIndexFailed(conf.Configuration.LocalLyricsDir, err)
		}
	}()
}

// buildHandler wraps the router: logging, CORS, rate limit, API key.
func buildHandler(ctx context.Context, router *mux.Router) http.Handler {
	c := conf.Configuration

	limiter := middleware.NewIPRateLimiter(
		rate.Limit(c.RateLimitPerSecond), c.RateLimitBurstLimit,
		rate.Limit(c.CachedRateLimitPerSecond), c.CachedRateLimitBurstLimit,
	)
	limiter.StartEviction(ctx, time.Minute, 10*time.Minute)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		ExposedHeaders: []string{
			"X-Cache-Status", "X-Lyrics-Source", "X-Auth-Mode",
			"X-RateLimit-Type", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After",
		},
	})

	apiKey := middleware.APIKeyMiddleware(c.APIKey, c.APIKeyRequired, []string{"/", "/health", "/providers"})

	var h http.Handler = router
	h = apiKey(h)
	h = middleware.RateLimit(limiter, c.APIKey)(h)
	h = corsHandler.Handler(h)
	return middleware.LoggingMiddleware(h)
}
