package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Yellow = "\033[33m"

	// Bright variants for more color variety
	BrightGreen   = "\033[92m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"

	Red       = "\033[31m"
	BrightRed = "\033[91m"
)

// Cache-related log prefixes
const (
	LogCacheInit    = Blue + "[Cache:Init]" + Reset
	LogCache        = Blue + "[Cache]" + Reset
	LogCacheBackup  = Blue + "[Cache:Backup]" + Reset
	LogCacheClear   = Blue + "[Cache:Clear]" + Reset
	LogCacheBackups = Blue + "[Cache:Backups]" + Reset
	LogCacheRestore = Blue + "[Cache:Restore]" + Reset
	LogCacheLyrics  = Green + "[Cache:Lyrics]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAPIKey    = Purple + "[APIKey]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

var sourceColors = []string{
	Green, Blue, Purple, Cyan, Yellow,
	BrightGreen, BrightBlue, BrightMagenta, BrightCyan, BrightRed,
}

// Source returns a colored source identifier for log messages.
// The same identifier always gets the same color.
func Source(name string) string {
	hash := 0
	for _, c := range name {
		hash += int(c)
	}
	color := sourceColors[hash%len(sourceColors)]
	return color + name + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
)

// Notification log prefixes
const (
	LogNotifier          = Cyan + "[Notifier]" + Reset
	LogTestNotifications = Cyan + "[Test Notifications]" + Reset
)

// Provider service log prefixes
const (
	LogRequest        = Purple + "[Request]" + Reset
	LogSearch         = Blue + "[Search]" + Reset
	LogHTTP           = Cyan + "[HTTP]" + Reset
	LogMatch          = Green + "[Match]" + Reset
	LogSuccess        = Green + "[Success]" + Reset
	LogLyrics         = Blue + "[Lyrics]" + Reset
	LogDurationFilter = Cyan + "[Duration Filter]" + Reset
	LogAuthError      = Purple + "[Auth Error]" + Reset
	LogCircuitBreaker = Purple + "[CircuitBreaker]" + Reset
	LogBestMatch      = Green + "[Best Match]" + Reset
	LogTrackScore     = Cyan + "[Track Score]" + Reset
	LogWarning        = Red + "[Warning]" + Reset
	LogRegistry       = Purple + "[Registry]" + Reset
	LogLocal          = Green + "[Local]" + Reset
	LogWatcher        = Cyan + "[Watcher]" + Reset
)

// Parser log prefixes
const (
	LogTTMLParser = Cyan + "[TTML Parser]" + Reset
	LogLRCParser  = Cyan + "[LRC Parser]" + Reset
)

// Pipeline log prefixes
const (
	LogReconcile = BrightBlue + "[Reconcile]" + Reset
	LogRemap     = BrightMagenta + "[Remap]" + Reset
	LogSession   = BrightGreen + "[Session]" + Reset
	LogSync      = BrightCyan + "[Sync]" + Reset
	LogDrift     = Yellow + "[Drift]" + Reset
	LogTranslate = Blue + "[Translate]" + Reset
	LogPlayer    = Green + "[Player]" + Reset
)
