package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port                       string `envconfig:"PORT" default:"8080"`
		RateLimitPerSecond         int    `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
		RateLimitBurstLimit        int    `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"5"`
		CachedRateLimitPerSecond   int    `envconfig:"CACHED_RATE_LIMIT_PER_SECOND" default:"10"`
		CachedRateLimitBurstLimit  int    `envconfig:"CACHED_RATE_LIMIT_BURST_LIMIT" default:"20"`
		CacheAccessToken           string `envconfig:"CACHE_ACCESS_TOKEN" default:""`
		CacheDBPath                string `envconfig:"CACHE_DB_PATH" default:"./data/cache.db"`
		CacheBackupPath            string `envconfig:"CACHE_BACKUP_PATH" default:"./data/backups"`
		CacheMaxAgeDays            int    `envconfig:"CACHE_MAX_AGE_DAYS" default:"30"` // 0 keeps entries forever
		StatsDBPath                string `envconfig:"STATS_DB_PATH" default:"./data/stats.db"`
		APIKey                     string `envconfig:"API_KEY" default:""`
		APIKeyRequired             bool   `envconfig:"API_KEY_REQUIRED" default:"false"`
		CircuitBreakerThreshold    int    `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`       // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int    `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds to wait before retrying

		// Provider selection
		ProviderOrder        string  `envconfig:"PROVIDER_ORDER" default:""`              // comma separated, "d_" prefix disables
		ReferenceSource      string  `envconfig:"REFERENCE_SOURCE" default:"host-plain"`
		MetadataSource       string  `envconfig:"METADATA_SOURCE" default:"ttml-word"`
		ProviderTimeoutSecs  int     `envconfig:"PROVIDER_TIMEOUT_SECS" default:"10"`
		MinCrossValidation   float64 `envconfig:"MIN_CROSS_VALIDATION_SIMILARITY" default:"0.5"`
		MinSimilarityScore   float64 `envconfig:"MIN_SIMILARITY_SCORE" default:"0.6"`
		DurationMatchDeltaMs int     `envconfig:"DURATION_MATCH_DELTA_MS" default:"2000"` // Strict duration filter for track search

		// TTML catalog API
		TTMLBearerToken    string `envconfig:"TTML_BEARER_TOKEN" default:""`
		TTMLMediaUserToken string `envconfig:"TTML_MEDIA_USER_TOKEN" default:""`
		TTMLStorefront     string `envconfig:"TTML_STOREFRONT" default:"us"`
		TTMLBaseURL        string `envconfig:"TTML_BASE_URL" default:""`
		TTMLSearchPath     string `envconfig:"TTML_SEARCH_PATH" default:"/v1/catalog/%s/search?types=songs&limit=25&term=%s"`
		TTMLLyricsPath     string `envconfig:"TTML_LYRICS_PATH" default:"/v1/catalog/%s/songs/%s/syllable-lyrics"`

		// Other sources
		LRCLibURL          string `envconfig:"LRCLIB_URL" default:"https://lrclib.net"`
		LegacyClientID     string `envconfig:"LEGACY_CLIENT_ID" default:""`
		LegacyClientSecret string `envconfig:"LEGACY_CLIENT_SECRET" default:""`
		LegacyTokenURL     string `envconfig:"LEGACY_TOKEN_URL" default:"https://accounts.spotify.com/api/token"`
		LegacySearchURL    string `envconfig:"LEGACY_SEARCH_URL" default:"https://api.spotify.com/v1/search"`
		LegacyLyricsURL    string `envconfig:"LEGACY_LYRICS_URL" default:""`
		LocalLyricsDir     string `envconfig:"LOCAL_LYRICS_DIR" default:""`
		TranslateURL       string `envconfig:"TRANSLATE_URL" default:"https://translate.googleapis.com/translate_a/single"`

		// Notifications
		NotifierTopic        string `envconfig:"NOTIFIER_NTFY_TOPIC" default:""`
		NotifierServer       string `envconfig:"NOTIFIER_NTFY_SERVER" default:""`
		TelegramBotToken     string `envconfig:"NOTIFIER_TELEGRAM_BOT_TOKEN" default:""`
		TelegramChatID       string `envconfig:"NOTIFIER_TELEGRAM_CHAT_ID" default:""`
		NotifierSMTPHost     string `envconfig:"NOTIFIER_SMTP_HOST" default:""`
		NotifierSMTPPort     string `envconfig:"NOTIFIER_SMTP_PORT" default:"587"`
		NotifierSMTPUsername string `envconfig:"NOTIFIER_SMTP_USERNAME" default:""`
		NotifierSMTPPassword string `envconfig:"NOTIFIER_SMTP_PASSWORD" default:""`
		NotifierFromEmail    string `envconfig:"NOTIFIER_FROM_EMAIL" default:""`
		NotifierToEmail      string `envconfig:"NOTIFIER_TO_EMAIL" default:""`

		// Sync scheduler tuning
		SyncOffsetWordSecs       float64 `envconfig:"SYNC_OFFSET_WORD_SECS" default:"0.015"`
		SyncOffsetLineSecs       float64 `envconfig:"SYNC_OFFSET_LINE_SECS" default:"0.115"`
		ScrollLeadSecs           float64 `envconfig:"SCROLL_LEAD_SECS" default:"0.25"`
		SelectionLookaheadSecs   float64 `envconfig:"SELECTION_LOOKAHEAD_SECS" default:"2"`
		FirstActiveMinRemaining  float64 `envconfig:"FIRST_ACTIVE_MIN_REMAINING_SECS" default:"0.3"`
		DriftDecay               float64 `envconfig:"DRIFT_DECAY" default:"1.08"`
		DriftGain                float64 `envconfig:"DRIFT_GAIN" default:"0.4"`
		DriftResetMs             float64 `envconfig:"DRIFT_RESET_MS" default:"100"`
		ScrollThresholdPx        float64 `envconfig:"SCROLL_THRESHOLD_PX" default:"5"`
		ScrollTransitionMs       int64   `envconfig:"SCROLL_TRANSITION_MS" default:"400"`
		ScrollCenterFraction     float64 `envconfig:"SCROLL_CENTER_FRACTION" default:"0.37"`
		ManualScrollCooldownSecs int     `envconfig:"MANUAL_SCROLL_COOLDOWN_SECS" default:"25"`
	}

	FeatureFlags struct {
		CacheCompression bool `envconfig:"FF_CACHE_COMPRESSION" default:"true"`
	}
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Debugf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}

// ProviderOrder splits the configured provider order. An empty setting
// returns nil so callers fall back to the built-in default.
func (c Config) ProviderOrder() []string {
	raw := strings.TrimSpace(c.Configuration.ProviderOrder)
	if raw == "" {
		return nil
	}
	var order []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			order = append(order, entry)
		}
	}
	return order
}
