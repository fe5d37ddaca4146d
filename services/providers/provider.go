package providers

import (
	"context"
	"errors"
	"fmt"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single provider fetch.
const DefaultTimeout = 10 * time.Second

// Provider defines the interface that all lyrics providers must implement
type Provider interface {
	// Name returns the provider's identifier (e.g., "ttml", "kugou", "lrclib")
	Name() string

	// Sources lists the source slots one Fetch fills.
	Sources() []SourceID

	// Fetch looks the track up once and returns a result per source it
	// found lyrics for. Missing entries mean "nothing for that source".
	Fetch(ctx context.Context, params Params) (map[SourceID]*Result, error)
}

// Registry holds all registered providers together with a circuit breaker
// per provider.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	sources    map[SourceID]Provider
	breakers   map[string]*circuitbreaker.CircuitBreaker
	timeout    time.Duration
	breakerCfg circuitbreaker.Config
}

var (
	globalRegistry *Registry
	registryOnce   sync.Once
)

// NewRegistry returns an empty registry. A zero timeout means DefaultTimeout.
func NewRegistry(timeout time.Duration, breakerCfg circuitbreaker.Config) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		providers:  make(map[string]Provider),
		sources:    make(map[SourceID]Provider),
		breakers:   make(map[string]*circuitbreaker.CircuitBreaker),
		timeout:    timeout,
		breakerCfg: breakerCfg,
	}
}

// GetRegistry returns the global provider registry
func GetRegistry() *Registry {
	registryOnce.Do(func() {
		conf := config.Get()
		globalRegistry = NewRegistry(
			time.Duration(conf.Configuration.ProviderTimeoutSecs)*time.Second,
			circuitbreaker.Config{
				Threshold: conf.Configuration.CircuitBreakerThreshold,
				Cooldown:  time.Duration(conf.Configuration.CircuitBreakerCooldownSecs) * time.Second,
			},
		)
	})
	return globalRegistry
}

// Register adds a provider to the registry, replacing any provider with the
// same name or serving the same sources.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	r.providers[name] = p
	for _, id := range p.Sources() {
		if prev, ok := r.sources[id]; ok && prev.Name() != name {
			log.Warnf("%s Source %s moved from %s to %s", logcolors.LogRegistry, id, prev.Name(), name)
		}
		r.sources[id] = p
	}

	cfg := r.breakerCfg
	cfg.Name = name
	cfg.IsFailure = countsAsFailure
	r.breakers[name] = circuitbreaker.New(cfg)
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNoLyrics) && !errors.Is(err, context.Canceled)
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return p, nil
}

// ProviderFor returns the provider serving a source.
func (r *Registry) ProviderFor(id SourceID) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.sources[id]
	return p, ok
}

// List returns all registered provider names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has checks if a provider is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Breaker returns the circuit breaker guarding a provider.
func (r *Registry) Breaker(name string) *circuitbreaker.CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// BreakerStatuses reports every breaker, sorted by provider name.
func (r *Registry) BreakerStatuses() []circuitbreaker.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]circuitbreaker.Status, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetBreakers closes every circuit.
func (r *Registry) ResetBreakers() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}

// call runs one provider fetch behind its breaker and timeout. Panics are
// turned into errors so nothing escapes the registry.
func (r *Registry) call(ctx context.Context, p Provider, params Params) (map[SourceID]*Result, error) {
	cb := r.Breaker(p.Name())
	if cb == nil {
		return nil, fmt.Errorf("provider not registered: %s", p.Name())
	}

	var results map[SourceID]*Result
	err := cb.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		var err error
		results, err = safeFetch(callCtx, p, params)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		log.Debugf("%s %s skipped, circuit open", logcolors.LogRegistry, p.Name())
	}
	return results, err
}

func safeFetch(ctx context.Context, p Provider, params Params) (results map[SourceID]*Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			results = nil
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), rec)
		}
	}()
	return p.Fetch(ctx, params)
}

// Register is a convenience function to register a provider in the global registry
func Register(p Provider) {
	GetRegistry().Register(p)
}

// Get is a convenience function to get a provider from the global registry
func Get(name string) (Provider, error) {
	return GetRegistry().Get(name)
}

// List is a convenience function to list all providers in the global registry
func List() []string {
	return GetRegistry().List()
}

// Has is a convenience function to check if a provider exists in the global registry
func Has(name string) bool {
	return GetRegistry().Has(name)
}
