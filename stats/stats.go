package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Provider outcome names used by RecordSourceOutcome.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

// Stats holds all server statistics with atomic counters
type Stats struct {
	// Server info
	StartTime time.Time

	// Request counters
	TotalRequests    atomic.Int64
	LyricsRequests   atomic.Int64
	RemapRequests    atomic.Int64
	ProviderRequests atomic.Int64
	CacheRequests    atomic.Int64
	StatsRequests    atomic.Int64
	HealthRequests   atomic.Int64
	OtherRequests    atomic.Int64

	// Cache performance
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Rate limiting
	RateLimitNormal   atomic.Int64 // Requests served under normal rate limit
	RateLimitCached   atomic.Int64 // Requests served under cached-only tier
	RateLimitExceeded atomic.Int64 // Requests rejected (429)

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Reconciliation
	NotFound           atomic.Int64 // queries that ended in the no-lyrics sentinel
	ProvisionalCommits atomic.Int64
	SupersededLoads    atomic.Int64
	Remaps             atomic.Int64
	DriftReanchors     atomic.Int64

	// Response time tracking (in microseconds for precision)
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64

	// Endpoint response times (microseconds)
	lyricsResponseTime  atomic.Int64
	lyricsResponseCount atomic.Int64

	// source id -> *sourceCounters
	sources sync.Map
}

type sourceCounters struct {
	accepted atomic.Int64
	rejected atomic.Int64
	empty    atomic.Int64
	failed   atomic.Int64
}

// SourceOutcomes is a point-in-time copy of one source's counters.
type SourceOutcomes struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Empty    int64 `json:"empty"`
	Failed   int64 `json:"failed"`
}

const maxInt64 = int64(^uint64(0) >> 1)

// Global stats instance
var global = New()

// New returns a zeroed Stats, mostly for tests.
func New() *Stats {
	s := &Stats{StartTime: time.Now()}
	s.minResponseTime.Store(maxInt64)
	return s
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a specific endpoint
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case "/getLyrics":
		s.LyricsRequests.Add(1)
	case "/remap":
		s.RemapRequests.Add(1)
	case "/providers":
		s.ProviderRequests.Add(1)
	case "/cache":
		s.CacheRequests.Add(1)
	case "/stats":
		s.StatsRequests.Add(1)
	case "/health":
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordCacheHit records a cache hit
func (s *Stats) RecordCacheHit() {
	s.CacheHits.Add(1)
}

// RecordCacheMiss records a cache miss
func (s *Stats) RecordCacheMiss() {
	s.CacheMisses.Add(1)
}

// RecordRateLimit records rate limit tier usage
func (s *Stats) RecordRateLimit(tier string) {
	switch tier {
	case "normal":
		s.RateLimitNormal.Add(1)
	case "cached":
		s.RateLimitCached.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordSourceOutcome counts what happened to a source during reconciliation.
func (s *Stats) RecordSourceOutcome(source, outcome string) {
	v, _ := s.sources.LoadOrStore(source, &sourceCounters{})
	c := v.(*sourceCounters)
	switch outcome {
	case OutcomeAccepted:
		c.accepted.Add(1)
	case OutcomeRejected:
		c.rejected.Add(1)
	case OutcomeEmpty:
		c.empty.Add(1)
	case OutcomeFailed:
		c.failed.Add(1)
	}
}

// SourceSnapshot returns the per-source counters keyed by source id.
func (s *Stats) SourceSnapshot() map[string]SourceOutcomes {
	out := make(map[string]SourceOutcomes)
	s.sources.Range(func(key, value any) bool {
		c := value.(*sourceCounters)
		out[key.(string)] = SourceOutcomes{
			Accepted: c.accepted.Load(),
			Rejected: c.rejected.Load(),
			Empty:    c.empty.Load(),
			Failed:   c.failed.Load(),
		}
		return true
	})
	return out
}

// Sources returns the source ids seen so far, sorted.
func (s *Stats) Sources() []string {
	var names []string
	s.sources.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

func (s *Stats) restoreSource(source string, o SourceOutcomes) {
	c := &sourceCounters{}
	c.accepted.Store(o.Accepted)
	c.rejected.Store(o.Rejected)
	c.empty.Store(o.Empty)
	c.failed.Store(o.Failed)
	s.sources.Store(source, c)
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration, endpoint string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	// Update min/max atomically
	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	if endpoint == "/getLyrics" {
		s.lyricsResponseTime.Add(us)
		s.lyricsResponseCount.Add(1)
	}
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns the cache hit rate as a percentage
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load()
	misses := s.CacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == maxInt64 {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// AvgLyricsResponseTime returns the average response time for lyrics requests
func (s *Stats) AvgLyricsResponseTime() time.Duration {
	count := s.lyricsResponseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.lyricsResponseTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":     s.TotalRequests.Load(),
			"lyrics":    s.LyricsRequests.Load(),
			"remap":     s.RemapRequests.Load(),
			"providers": s.ProviderRequests.Load(),
			"cache":     s.CacheRequests.Load(),
			"stats":     s.StatsRequests.Load(),
			"health":    s.HealthRequests.Load(),
			"other":     s.OtherRequests.Load(),
		},
		"cache": map[string]interface{}{
			"hits":     s.CacheHits.Load(),
			"misses":   s.CacheMisses.Load(),
			"hit_rate": s.CacheHitRate(),
		},
		"rate_limiting": map[string]interface{}{
			"normal_tier": s.RateLimitNormal.Load(),
			"cached_tier": s.RateLimitCached.Load(),
			"exceeded":    s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"reconciliation": map[string]interface{}{
			"not_found":           s.NotFound.Load(),
			"provisional_commits": s.ProvisionalCommits.Load(),
			"superseded_loads":    s.SupersededLoads.Load(),
			"remaps":              s.Remaps.Load(),
			"drift_reanchors":     s.DriftReanchors.Load(),
			"sources":             s.SourceSnapshot(),
		},
		"response_times": map[string]interface{}{
			"avg":        s.AvgResponseTime().String(),
			"min":        s.MinResponseTime().String(),
			"max":        s.MaxResponseTime().String(),
			"avg_lyrics": s.AvgLyricsResponseTime().String(),
		},
	}
}
