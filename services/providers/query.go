package providers

import (
	"context"
	"lyrics-sync-go/logcolors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Query is the per-lookup result cache. Each source has one slot that is
// filled at most once; a provider serving several sources fills all of them
// from a single fetch. Build a fresh Query for every lookup.
type Query struct {
	registry *Registry

	mu     sync.Mutex
	params Params
	slots  map[SourceID]*slot
}

type slot struct {
	result *Result
	err    error
	done   chan struct{} // closed once filled
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// NewQuery starts a lookup against the registry.
func (r *Registry) NewQuery(params Params) *Query {
	return &Query{
		registry: r,
		params:   params,
		slots:    make(map[SourceID]*slot),
	}
}

// Params returns the parameters later fetches will use.
func (q *Query) Params() Params {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.params
}

// SetParams replaces the parameters for fetches that have not started yet.
// Slots already filled keep their results.
func (q *Query) SetParams(p Params) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.params = p
}

// Fetch returns the result for a source, invoking its provider only if no
// slot for the source exists yet. Concurrent callers for sources of the same
// provider wait for the single in-flight fetch. A nil result means the
// source had nothing, failed, or ctx ended first.
func (q *Query) Fetch(ctx context.Context, id SourceID) *Result {
	q.mu.Lock()
	if s, ok := q.slots[id]; ok {
		q.mu.Unlock()
		select {
		case <-s.done:
			return s.result
		case <-ctx.Done():
			return nil
		}
	}

	p, ok := q.registry.ProviderFor(id)
	if !ok {
		q.slots[id] = &slot{done: closedChan}
		q.mu.Unlock()
		log.Debugf("%s No provider for source %s", logcolors.LogRegistry, id)
		return nil
	}

	pending := make(map[SourceID]*slot)
	for _, sid := range p.Sources() {
		if _, exists := q.slots[sid]; exists {
			continue
		}
		s := &slot{done: make(chan struct{})}
		q.slots[sid] = s
		pending[sid] = s
	}
	if _, exists := q.slots[id]; !exists {
		s := &slot{done: make(chan struct{})}
		q.slots[id] = s
		pending[id] = s
	}
	target := q.slots[id]
	params := q.params
	q.mu.Unlock()

	q.invoke(ctx, p, params, pending)
	return target.result
}

func (q *Query) invoke(ctx context.Context, p Provider, params Params, pending map[SourceID]*slot) {
	results, err := q.registry.call(ctx, p, params)
	if err != nil {
		log.Warnf("%s %s fetch failed: %v", logcolors.LogRegistry, logcolors.Source(p.Name()), err)
	}

	for id, s := range pending {
		res := results[id]
		if res != nil && res.Document == nil {
			res = nil
		}
		if res != nil {
			res.Document.VideoTimeline = res.VideoTimeline
		}
		s.result = res
		s.err = err
		close(s.done)
	}
}

// Filled reports whether a source's slot has been filled.
func (q *Query) Filled(id SourceID) bool {
	q.mu.Lock()
	s, ok := q.slots[id]
	q.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Err returns the provider error recorded for a filled slot.
func (q *Query) Err(id SourceID) error {
	q.mu.Lock()
	s, ok := q.slots[id]
	q.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// TrackInfo returns the corrected track metadata reported for a source, or
// by any filled sibling source of the same provider.
func (q *Query) TrackInfo(id SourceID) *TrackInfo {
	candidates := []SourceID{id}
	if p, ok := q.registry.ProviderFor(id); ok {
		candidates = append(candidates, p.Sources()...)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, sid := range candidates {
		s, ok := q.slots[sid]
		if !ok {
			continue
		}
		select {
		case <-s.done:
			if s.result != nil && s.result.Track != nil {
				return s.result.Track
			}
		default:
		}
	}
	return nil
}
