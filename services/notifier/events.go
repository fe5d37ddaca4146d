package notifier

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Critical events
	EventCircuitBreakerOpen  EventType = "circuit_breaker_open"
	EventServerStartupFailed EventType = "server_startup_failed"

	// Warning events
	EventHighFailureRate       EventType = "high_failure_rate"
	EventCacheBackupFailed     EventType = "cache_backup_failed"
	EventProviderOrderRejected EventType = "provider_order_rejected"
	EventLocalIndexFailed      EventType = "local_index_failed"

	// Info events
	EventCircuitBreakerRecovered EventType = "circuit_breaker_recovered"
	EventServerStarted           EventType = "server_started"
	EventCacheCleared            EventType = "cache_cleared"
)

// Severity represents the severity level of an event
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Event represents a system event
type Event struct {
	Type      EventType
	Severity  Severity
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, severity Severity, message string) *Event {
	return &Event{
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// WithData adds data to the event (chainable)
func (e *Event) WithData(key string, value interface{}) *Event {
	e.Data[key] = value
	return e
}

// EventHandler is a function that handles events
type EventHandler func(event *Event)

// EventBus fans events out to subscribers. Handlers run on their own
// goroutines so publishers never block.
type EventBus struct {
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
	mu          sync.RWMutex
}

var globalBus *EventBus
var busOnce sync.Once

// NewEventBus returns an empty bus, for tests and embedded use.
func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[EventType][]EventHandler)}
}

// GetEventBus returns the global event bus instance
func GetEventBus() *EventBus {
	busOnce.Do(func() {
		globalBus = NewEventBus()
	})
	return globalBus
}

// Subscribe adds a handler for a specific event type
func (b *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll adds a handler that receives all events
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers[event.Type] {
		go handler(event)
	}
	for _, handler := range b.allHandlers {
		go handler(event)
	}
}

// publish sends an event built from alternating key/value pairs to the
// global bus.
func publish(t EventType, sev Severity, message string, kv ...interface{}) {
	event := NewEvent(t, sev, message)
	for i := 0; i+1 < len(kv); i += 2 {
		event.WithData(kv[i].(string), kv[i+1])
	}
	GetEventBus().Publish(event)
}

func PublishCircuitBreakerOpen(name string, failures int, cooldown time.Duration) {
	publish(EventCircuitBreakerOpen, SeverityCritical, "Circuit breaker has opened due to consecutive failures",
		"name", name, "failures", failures, "cooldown", cooldown.String())
}

func PublishCircuitBreakerRecovered(name string) {
	publish(EventCircuitBreakerRecovered, SeverityInfo, "Circuit breaker has recovered and is operational",
		"name", name)
}

// PublishHighFailureRate warns one failure before a breaker trips.
func PublishHighFailureRate(name string, failures, threshold int) {
	publish(EventHighFailureRate, SeverityWarning, "High failure rate detected, circuit breaker may trip soon",
		"name", name, "failures", failures, "threshold", threshold)
}

func PublishCacheBackupFailed(err error) {
	publish(EventCacheBackupFailed, SeverityWarning, "Cache backup operation failed",
		"error", err.Error())
}

func PublishCacheCleared(backupPath string) {
	publish(EventCacheCleared, SeverityInfo, "Cache has been cleared",
		"backup_path", backupPath)
}

// PublishProviderOrderRejected reports a PROVIDER_ORDER that was replaced
// by the default.
func PublishProviderOrderRejected(configured, effective []string) {
	publish(EventProviderOrderRejected, SeverityWarning, "Configured provider order was rejected",
		"configured", configured, "effective", effective)
}

// PublishLocalIndexFailed reports a local lyrics folder that cannot be
// indexed or watched.
func PublishLocalIndexFailed(dir string, err error) {
	publish(EventLocalIndexFailed, SeverityWarning, "Local lyrics folder could not be indexed",
		"dir", dir, "error", err.Error())
}

func PublishServerStarted(port string, order []string) {
	publish(EventServerStarted, SeverityInfo, "Server started successfully",
		"port", port, "order", order)
}

func PublishServerStartupFailed(component string, err error) {
	publish(EventServerStartupFailed, SeverityCritical, "Server failed to start",
		"component", component, "error", err.Error())
}
