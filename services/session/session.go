// Package session owns the currently installed lyrics document and makes
// sure only the most recent load can replace it.
package session

import (
	"context"
	"errors"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/reconcile"
	"lyrics-sync-go/services/remap"
	"lyrics-sync-go/stats"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrSuperseded is returned by Load when a newer load (or Cancel) took over
// before the result could be committed.
var ErrSuperseded = errors.New("load superseded")

// Reconciler resolves a document for a track.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error)
}

// Request is one load.
type Request struct {
	reconcile.Request
	// Segments maps the lyrics' timeline onto the media's, used when the
	// chosen source was timed against the other timeline kind.
	Segments []remap.Segment
}

// Commit is an installed document.
type Commit struct {
	Generation  uint64
	Outcome     *reconcile.Outcome
	Document    *lyrics.Document
	Provisional bool
	Remapped    bool
}

// Listener receives every commit. It is called outside the session lock, in
// commit order per generation.
type Listener func(Commit)

type inflight struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// Session serialises loads. Starting a load cancels the previous one and
// waits for it to unwind; only the current generation may commit.
type Session struct {
	reconciler Reconciler
	stats      *stats.Stats

	mu         sync.Mutex
	generation uint64
	running    *inflight
	current    *Commit
	listeners  []Listener
}

// New creates a session over r.
func New(r Reconciler) *Session {
	return &Session{reconciler: r, stats: stats.Get()}
}

// OnCommit registers a listener.
func (s *Session) OnCommit(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Current returns the installed commit, or nil.
func (s *Session) Current() *Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// Generation returns the generation of the most recently started load.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Cancel aborts the in-flight load, if any, without starting a new one.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.generation++
	prev := s.running
	s.running = nil
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
}

// Load resolves and installs the document for req. Provisional documents
// reported by the reconciler are committed through the same gate and then
// replaced by the final one. Load returns ErrSuperseded if a newer load
// started first, and ctx's error if the caller gave up while waiting.
func (s *Session) Load(ctx context.Context, req Request) (*Commit, error) {
	return s.Begin(req).Run(ctx)
}

// Ticket is a load that already owns the current generation but has not
// started resolving yet.
type Ticket struct {
	s       *Session
	req     Request
	run     *inflight
	prev    *inflight
	loadCtx context.Context
}

// Begin claims the next generation for req and cancels the in-flight load
// without waiting for it. From here on no earlier load can commit. The
// returned ticket must be Run exactly once, or later loads block on it.
func (s *Session) Begin(req Request) *Ticket {
	loadCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.generation++
	run := &inflight{generation: s.generation, cancel: cancel, done: make(chan struct{})}
	prev := s.running
	s.running = run
	s.mu.Unlock()

	if prev != nil {
		log.Debugf("%s Load %d supersedes load %d", logcolors.LogSession, run.generation, prev.generation)
		prev.cancel()
	}
	return &Ticket{s: s, req: req, run: run, prev: prev, loadCtx: loadCtx}
}

// Generation is the generation the ticket commits under.
func (t *Ticket) Generation() uint64 {
	return t.run.generation
}

// Run waits for the superseded load to unwind, then resolves and commits.
// Cancelling ctx abandons the load.
func (t *Ticket) Run(ctx context.Context) (*Commit, error) {
	s, run, loadCtx := t.s, t.run, t.loadCtx
	stop := context.AfterFunc(ctx, run.cancel)
	defer stop()
	defer run.cancel()
	defer s.finish(run)

	if t.prev != nil {
		select {
		case <-t.prev.done:
		case <-loadCtx.Done():
			return nil, s.abandoned(ctx)
		}
	}
	if loadCtx.Err() != nil || ctx.Err() != nil {
		return nil, s.abandoned(ctx)
	}

	req := t.req
	inner := req.Request
	inner.OnProvisional = func(o *reconcile.Outcome) {
		if _, err := s.commit(loadCtx, run.generation, o, req, true); err == nil {
			s.stats.ProvisionalCommits.Add(1)
		}
	}

	outcome, err := s.reconciler.Reconcile(loadCtx, inner)
	if err != nil {
		if loadCtx.Err() != nil {
			return nil, s.abandoned(ctx)
		}
		return nil, err
	}

	c, err := s.commit(loadCtx, run.generation, outcome, req, false)
	if err != nil {
		s.stats.SupersededLoads.Add(1)
		return nil, err
	}
	return c, nil
}

func (s *Session) abandoned(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.stats.SupersededLoads.Add(1)
	return ErrSuperseded
}

func (s *Session) finish(run *inflight) {
	s.mu.Lock()
	if s.running == run {
		s.running = nil
	}
	s.mu.Unlock()
	close(run.done)
}

// commit is the only write path for the installed document.
func (s *Session) commit(ctx context.Context, generation uint64, o *reconcile.Outcome, req Request, provisional bool) (*Commit, error) {
	doc := o.Document()
	remapped := false
	if doc != nil && o.RemapRequired && len(req.Segments) > 0 {
		doc = doc.Clone()
		remapped = remap.ApplySegments(doc, req.Segments, req.MediaIsVideo)
	}
	c := &Commit{
		Generation:  generation,
		Outcome:     o,
		Document:    doc,
		Provisional: provisional,
		Remapped:    remapped,
	}

	s.mu.Lock()
	if ctx.Err() != nil || generation != s.generation {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	if provisional && s.current != nil && s.current.Generation == generation && !s.current.Provisional {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	s.current = c
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if remapped {
		s.stats.Remaps.Add(1)
	}
	log.Infof("%s Committed %s from %s (generation %d, provisional=%t)",
		logcolors.LogSession, describe(doc), o.Source, generation, provisional)
	for _, l := range listeners {
		l(*c)
	}
	return c, nil
}

func describe(doc *lyrics.Document) string {
	if doc.IsNotFound() {
		return "no-lyrics sentinel"
	}
	return string(doc.SyncGranularity()) + "-synced document"
}
