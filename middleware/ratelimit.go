package middleware

import (
	"context"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/stats"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Rate limit tiers, also sent in X-RateLimit-Type.
const (
	TierNormal   = "normal"
	TierCached   = "cached"
	TierBypass   = "bypass"
	TierExceeded = "exceeded"
)

// LimiterPair holds both tiers for one client.
type LimiterPair struct {
	Normal   *rate.Limiter
	Cached   *rate.Limiter
	lastSeen time.Time
}

func (lp *LimiterPair) NormalTokens() int { return int(math.Floor(lp.Normal.Tokens())) }
func (lp *LimiterPair) CachedTokens() int { return int(math.Floor(lp.Cached.Tokens())) }

// IPRateLimiter keeps a LimiterPair per client IP. A request that exhausts
// the normal tier may still be served from cache under the cached tier.
type IPRateLimiter struct {
	mu          sync.Mutex
	ips         map[string]*LimiterPair
	normalRate  rate.Limit
	normalBurst int
	cachedRate  rate.Limit
	cachedBurst int
	now         func() time.Time
}

func NewIPRateLimiter(normalRate rate.Limit, normalBurst int, cachedRate rate.Limit, cachedBurst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:         make(map[string]*LimiterPair),
		normalRate:  normalRate,
		normalBurst: normalBurst,
		cachedRate:  cachedRate,
		cachedBurst: cachedBurst,
		now:         time.Now,
	}
}

func (i *IPRateLimiter) NormalLimit() int { return i.normalBurst }
func (i *IPRateLimiter) CachedLimit() int { return i.cachedBurst }

// Limiter returns the pair for ip, creating it on first use.
func (i *IPRateLimiter) Limiter(ip string) *LimiterPair {
	i.mu.Lock()
	defer i.mu.Unlock()

	pair, ok := i.ips[ip]
	if !ok {
		pair = &LimiterPair{
			Normal: rate.NewLimiter(i.normalRate, i.normalBurst),
			Cached: rate.NewLimiter(i.cachedRate, i.cachedBurst),
		}
		i.ips[ip] = pair
	}
	pair.lastSeen = i.now()
	return pair
}

// Len returns the number of tracked clients.
func (i *IPRateLimiter) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

// Evict forgets clients idle for longer than maxIdle.
func (i *IPRateLimiter) Evict(maxIdle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := i.now().Add(-maxIdle)
	n := 0
	for ip, pair := range i.ips {
		if pair.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			n++
		}
	}
	return n
}

// StartEviction runs Evict every interval until ctx is done.
func (i *IPRateLimiter) StartEviction(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := i.Evict(maxIdle); n > 0 {
					log.Debugf("%s Evicted %d idle clients", logcolors.LogRateLimit, n)
				}
			}
		}
	}()
}

type tierKey struct{}

// WithTier stores the rate limit tier in ctx.
func WithTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, tierKey{}, tier)
}

// TierFrom returns the tier the request was admitted under.
func TierFrom(ctx context.Context) string {
	tier, _ := ctx.Value(tierKey{}).(string)
	return tier
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimit admits requests under the normal tier, then the cached tier,
// and answers 429 when both are exhausted. A request carrying bypassKey
// in X-API-Key is not limited.
func RateLimit(limiter *IPRateLimiter, bypassKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypassKey != "" && r.Header.Get("X-API-Key") == bypassKey {
				w.Header().Set("X-RateLimit-Bypass", "true")
				next.ServeHTTP(w, r.WithContext(WithTier(r.Context(), TierBypass)))
				return
			}

			ip := ClientIP(r)
			pair := limiter.Limiter(ip)

			if pair.Normal.Allow() {
				stats.Get().RecordRateLimit(TierNormal)
				setLimitHeaders(w, TierNormal, limiter.NormalLimit(), pair.NormalTokens())
				next.ServeHTTP(w, r.WithContext(WithTier(r.Context(), TierNormal)))
				return
			}

			if pair.Cached.Allow() {
				stats.Get().RecordRateLimit(TierCached)
				setLimitHeaders(w, TierCached, limiter.CachedLimit(), pair.CachedTokens())
				log.Debugf("%s %s exceeded normal tier, using cached tier", logcolors.LogRateLimit, ip)
				next.ServeHTTP(w, r.WithContext(WithTier(r.Context(), TierCached)))
				return
			}

			stats.Get().RecordRateLimit(TierExceeded)
			log.Warnf("%s %s exceeded both rate limit tiers", logcolors.LogRateLimit, ip)
			setLimitHeaders(w, TierExceeded, limiter.CachedLimit(), 0)
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, tier string, limit, remaining int) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Type", tier)
}
