package notifier

import (
	"fmt"
	"lyrics-sync-go/logcolors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// Default cooldown between alerts of the same type
	DefaultAlertCooldown = 15 * time.Minute
)

// AlertHandler turns bus events into notifications, at most one per event
// type per cooldown window.
type AlertHandler struct {
	notifiers        []Notifier
	cooldowns        map[EventType]time.Time
	cooldownDuration time.Duration
	minSeverity      Severity
	mu               sync.Mutex
}

// AlertConfig holds configuration for the alert handler
type AlertConfig struct {
	Notifiers        []Notifier
	CooldownDuration time.Duration
	// MinSeverity drops events below it. Empty means info.
	MinSeverity Severity
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(config AlertConfig) *AlertHandler {
	cooldown := config.CooldownDuration
	if cooldown == 0 {
		cooldown = DefaultAlertCooldown
	}
	minSeverity := config.MinSeverity
	if minSeverity == "" {
		minSeverity = SeverityInfo
	}

	return &AlertHandler{
		notifiers:        config.Notifiers,
		cooldowns:        make(map[EventType]time.Time),
		cooldownDuration: cooldown,
		minSeverity:      minSeverity,
	}
}

// Start subscribes the handler to bus.
func (h *AlertHandler) Start(bus *EventBus) {
	bus.SubscribeAll(h.HandleEvent)
	log.Infof("%s Alert handler started (cooldown: %v, notifiers: %d)",
		logcolors.LogNotifier, h.cooldownDuration, len(h.notifiers))
}

// HandleEvent formats and sends one event, honouring the cooldown.
func (h *AlertHandler) HandleEvent(event *Event) {
	if severityRank(event.Severity) < severityRank(h.minSeverity) {
		return
	}
	subject, message := FormatAlert(event)
	if subject == "" {
		return
	}
	if !h.shouldAlert(event.Type) {
		log.Debugf("%s Skipping alert for %s (cooldown active)", logcolors.LogNotifier, event.Type)
		return
	}
	h.sendAlert(subject, message)
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

func (h *AlertHandler) shouldAlert(eventType EventType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	lastAlert, exists := h.cooldowns[eventType]
	if !exists || time.Since(lastAlert) >= h.cooldownDuration {
		h.cooldowns[eventType] = time.Now()
		return true
	}
	return false
}

// FormatAlert renders an event as a subject and body. Unknown event types
// return an empty subject.
func FormatAlert(event *Event) (subject, message string) {
	switch event.Type {
	case EventCircuitBreakerOpen:
		subject = "Circuit Breaker OPEN"
		message = fmt.Sprintf(
			"The %s source has been disabled after %d consecutive failures.\n\n"+
				"Lookups will skip it for %s and fall through to the next source.",
			dataString(event, "name"), dataInt(event, "failures"), dataString(event, "cooldown"))

	case EventServerStartupFailed:
		subject = "Server Startup FAILED"
		message = fmt.Sprintf("Component: %s\nError: %s",
			dataString(event, "component"), dataString(event, "error"))

	case EventHighFailureRate:
		subject = "High Failure Rate Warning"
		message = fmt.Sprintf(
			"The %s source has recorded %d/%d consecutive failures.\n\n"+
				"If failures continue its circuit will open.",
			dataString(event, "name"), dataInt(event, "failures"), dataInt(event, "threshold"))

	case EventCacheBackupFailed:
		subject = "Cache Backup Failed"
		message = fmt.Sprintf("Failed to create cache backup.\n\nError: %s", dataString(event, "error"))

	case EventProviderOrderRejected:
		subject = "Provider Order Rejected"
		message = fmt.Sprintf("Configured order: %s\nUsing: %s",
			strings.Join(dataStrings(event, "configured"), ", "),
			strings.Join(dataStrings(event, "effective"), ", "))

	case EventLocalIndexFailed:
		subject = "Local Lyrics Index Failed"
		message = fmt.Sprintf("Folder: %s\nError: %s", dataString(event, "dir"), dataString(event, "error"))

	case EventCircuitBreakerRecovered:
		subject = "Circuit Breaker Recovered"
		message = fmt.Sprintf("The %s source is operational again.", dataString(event, "name"))

	case EventServerStarted:
		subject = "Server Started"
		message = fmt.Sprintf("Listening on port %s.\nSource order: %s",
			dataString(event, "port"), strings.Join(dataStrings(event, "order"), ", "))

	case EventCacheCleared:
		subject = "Cache Cleared"
		message = fmt.Sprintf("Cache has been cleared.\n\nBackup saved to: %s", dataString(event, "backup_path"))

	default:
		return "", ""
	}

	switch event.Severity {
	case SeverityCritical:
		subject = "🚨 " + subject
	case SeverityWarning:
		subject = "⚠️ " + subject
	case SeverityInfo:
		subject = "ℹ️ " + subject
	}
	return subject, message
}

func (h *AlertHandler) sendAlert(subject, message string) {
	if len(h.notifiers) == 0 {
		log.Debugf("%s No notifiers configured, skipping alert: %s", logcolors.LogNotifier, subject)
		return
	}

	log.Infof("%s Sending alert: %s", logcolors.LogNotifier, subject)

	successCount := 0
	for _, n := range h.notifiers {
		if err := n.Send(subject, message); err != nil {
			log.Errorf("%s Failed to send alert via notifier: %v", logcolors.LogNotifier, err)
		} else {
			successCount++
		}
	}

	if successCount > 0 {
		log.Infof("%s Alert sent via %d/%d notifiers", logcolors.LogNotifier, successCount, len(h.notifiers))
	}
}

// ResetAllCooldowns forgets every cooldown.
func (h *AlertHandler) ResetAllCooldowns() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cooldowns = make(map[EventType]time.Time)
}

func dataString(event *Event, key string) string {
	if v, ok := event.Data[key].(string); ok {
		return v
	}
	return ""
}

func dataInt(event *Event, key string) int {
	if v, ok := event.Data[key].(int); ok {
		return v
	}
	return 0
}

func dataStrings(event *Event, key string) []string {
	if v, ok := event.Data[key].([]string); ok {
		return v
	}
	return nil
}
