// Package reconcile picks one lyrics document for a track out of the
// registered sources.
package reconcile

import (
	"context"
	"errors"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/stats"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultMinSimilarity is the bigram similarity below which a candidate is
// taken to be lyrics for a different recording.
const DefaultMinSimilarity = 0.5

// Request is one reconciliation.
type Request struct {
	Params providers.Params
	// MediaIsVideo reports the timeline kind of the media being played.
	MediaIsVideo bool
	// OnProvisional, if set, receives the reference document while the
	// priority walk is still running. It is never called after Reconcile
	// has decided.
	OnProvisional func(*Outcome)
}

// Outcome is the reconciled result.
type Outcome struct {
	Source        providers.SourceID `json:"source"`
	Result        *providers.Result  `json:"-"`
	Params        providers.Params   `json:"-"`
	Similarity    float64            `json:"similarity"` // -1 when no reference was available
	RemapRequired bool               `json:"remapRequired"`
	Cacheable     bool               `json:"cacheable"`
	NotFound      bool               `json:"notFound"`
	Provisional   bool               `json:"provisional"`
}

// Document returns the chosen document.
func (o *Outcome) Document() *lyrics.Document {
	if o == nil || o.Result == nil {
		return nil
	}
	return o.Result.Document
}

// Engine walks the priority list of a registry.
type Engine struct {
	Registry        *providers.Registry
	Order           []providers.OrderEntry
	ReferenceSource providers.SourceID
	MetadataSource  providers.SourceID
	MinSimilarity   float64
	// Similarity compares candidate text against the reference text.
	Similarity func(candidate, reference string) float64
	Stats      *stats.Stats
}

// NewEngine returns an engine with the default thresholds.
func NewEngine(registry *providers.Registry, order []providers.OrderEntry) *Engine {
	return &Engine{
		Registry:      registry,
		Order:         order,
		MinSimilarity: DefaultMinSimilarity,
		Similarity:    BigramSimilarity,
		Stats:         stats.Get(),
	}
}

// NewEngineFromConfig builds an engine over the global registry. A custom
// provider order that drops a built-in source is replaced by the default.
func NewEngineFromConfig() *Engine {
	conf := config.Get()
	configured := conf.ProviderOrder()
	order, rejected := providers.ValidateOrder(configured)
	if rejected {
		effective := providers.OrderStrings(order)
		log.Warnf("%s Invalid PROVIDER_ORDER %v, using default %v", logcolors.LogConfig, configured, effective)
		notifier.PublishProviderOrderRejected(configured, effective)
	}

	e := NewEngine(providers.GetRegistry(), order)
	e.ReferenceSource = providers.SourceID(conf.Configuration.ReferenceSource)
	e.MetadataSource = providers.SourceID(conf.Configuration.MetadataSource)
	if conf.Configuration.MinCrossValidation > 0 {
		e.MinSimilarity = conf.Configuration.MinCrossValidation
	}
	return e
}

func (e *Engine) enabled(id providers.SourceID) bool {
	if id == "" {
		return false
	}
	for _, entry := range e.Order {
		if entry.Source == id {
			return !entry.Disabled
		}
	}
	return false
}

func (e *Engine) record(id providers.SourceID, outcome string) {
	if e.Stats != nil {
		e.Stats.RecordSourceOutcome(string(id), outcome)
	}
}

// Reconcile resolves one document. The only error is ctx's, returned when the
// caller cancelled before a decision.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Outcome, error) {
	q := e.Registry.NewQuery(req.Params)

	var (
		mu      sync.Mutex
		decided bool
	)

	// Reference prefetch.
	var reference *providers.Result
	refDone := make(chan struct{})
	if e.enabled(e.ReferenceSource) {
		go func() {
			defer close(refDone)
			ref := q.Fetch(ctx, e.ReferenceSource)
			if !ref.HasLines() {
				return
			}
			reference = ref

			mu.Lock()
			defer mu.Unlock()
			if decided || req.OnProvisional == nil || ctx.Err() != nil {
				return
			}
			log.Infof("%s Provisional lyrics from %s", logcolors.LogReconcile, e.ReferenceSource)
			req.OnProvisional(&Outcome{
				Source:      e.ReferenceSource,
				Result:      ref,
				Params:      req.Params,
				Similarity:  -1,
				Provisional: true,
			})
		}()
	} else {
		close(refDone)
	}

	decide := func(o *Outcome) *Outcome {
		mu.Lock()
		decided = true
		mu.Unlock()
		return o
	}

	// Metadata correction.
	if e.enabled(e.MetadataSource) {
		q.Fetch(ctx, e.MetadataSource)
		if track := q.TrackInfo(e.MetadataSource); track != nil {
			corrected := track.Apply(q.Params())
			log.Infof("%s Metadata corrected by %s: %q by %q (%.1fs)", logcolors.LogReconcile,
				e.MetadataSource, corrected.Song, corrected.Artist, corrected.DurationSeconds)
			q.SetParams(corrected)
		}
	}

	refReady := false
	for _, id := range providers.Enabled(e.Order) {
		res := q.Fetch(ctx, id)
		if ctx.Err() != nil {
			decide(nil)
			return nil, ctx.Err()
		}

		if !res.HasLines() {
			if err := q.Err(id); err != nil && !errors.Is(err, providers.ErrNoLyrics) {
				e.record(id, stats.OutcomeFailed)
			} else {
				e.record(id, stats.OutcomeEmpty)
			}
			continue
		}

		if !refReady {
			select {
			case <-refDone:
			case <-ctx.Done():
				decide(nil)
				return nil, ctx.Err()
			}
			refReady = true
		}

		similarity := -1.0
		if reference != nil {
			similarity = e.similarity(res.Document.Text(), reference.Document.Text())
			if similarity < e.MinSimilarity {
				log.Infof("%s Rejected %s: similarity %.2f below %.2f", logcolors.LogReconcile, id, similarity, e.MinSimilarity)
				e.record(id, stats.OutcomeRejected)
				continue
			}
		}

		e.record(id, stats.OutcomeAccepted)
		outcome := &Outcome{
			Source:        id,
			Result:        res,
			Params:        q.Params(),
			Similarity:    similarity,
			RemapRequired: req.MediaIsVideo != res.VideoTimeline,
			Cacheable:     res.Cacheable,
		}
		log.Infof("%s Selected %s (%d lines, %s sync, similarity %.2f)", logcolors.LogReconcile,
			id, len(res.Document.Lines), res.Document.SyncGranularity(), similarity)
		return decide(outcome), nil
	}

	if e.Stats != nil {
		e.Stats.NotFound.Add(1)
	}
	log.Infof("%s No source produced lyrics for %q by %q", logcolors.LogReconcile, req.Params.Song, req.Params.Artist)
	return decide(&Outcome{
		Result:     &providers.Result{Document: lyrics.NotFound()},
		Params:     q.Params(),
		Similarity: -1,
		NotFound:   true,
	}), nil
}

func (e *Engine) similarity(candidate, reference string) float64 {
	if e.Similarity != nil {
		return e.Similarity(candidate, reference)
	}
	return BigramSimilarity(candidate, reference)
}
