package session

import (
	"context"
	"errors"
	"fmt"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/reconcile"
	"lyrics-sync-go/services/remap"
	"sync"
	"testing"
	"time"
)

func outcomeFor(song string) *reconcile.Outcome {
	return &reconcile.Outcome{
		Source: "lrclib-synced",
		Result: &providers.Result{Document: &lyrics.Document{Lines: []lyrics.Line{
			{StartTimeMs: 1000, DurationMs: 1000, Text: song},
		}}},
		Similarity: -1,
	}
}

// gatedReconciler holds each song until its gate is closed. It ignores
// cancellation unless honourCancel is set.
type gatedReconciler struct {
	mu           sync.Mutex
	gates        map[string]chan struct{}
	started      chan string
	honourCancel bool
}

func newGatedReconciler(songs ...string) *gatedReconciler {
	r := &gatedReconciler{gates: make(map[string]chan struct{}), started: make(chan string, len(songs))}
	for _, s := range songs {
		r.gates[s] = make(chan struct{})
	}
	return r
}

func (r *gatedReconciler) release(song string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.gates[song])
}

func (r *gatedReconciler) Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
	r.mu.Lock()
	gate := r.gates[req.Params.Song]
	r.mu.Unlock()

	r.started <- req.Params.Song
	if r.honourCancel {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		<-gate
	}
	return outcomeFor(req.Params.Song), nil
}

type funcReconciler func(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error)

func (f funcReconciler) Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
	return f(ctx, req)
}

func loadRequest(song string) Request {
	return Request{Request: reconcile.Request{Params: providers.Params{Song: song, Artist: "Artist"}}}
}

type recorder struct {
	mu      sync.Mutex
	commits []Commit
}

func (r *recorder) listen(c Commit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, c)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.commits {
		out = append(out, c.Document.Lines[0].Text)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

type loadResult struct {
	commit *Commit
	err    error
}

func TestSession_Load(t *testing.T) {
	s := New(funcReconciler(func(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
		return outcomeFor(req.Params.Song), nil
	}))
	rec := &recorder{}
	s.OnCommit(rec.listen)

	c, err := s.Load(context.Background(), loadRequest("Hello"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Generation != 1 || c.Provisional || c.Document.Lines[0].Text != "Hello" {
		t.Errorf("Unexpected commit %+v", c)
	}
	if cur := s.Current(); cur == nil || cur.Document != c.Document {
		t.Errorf("Expected the commit to be current, got %+v", cur)
	}
	if got := rec.texts(); len(got) != 1 || got[0] != "Hello" {
		t.Errorf("Expected one listener call, got %v", got)
	}
}

func TestSession_CancellationRace(t *testing.T) {
	orders := map[string][]string{
		"X resolves first": {"X", "Y"},
		"Y resolves first": {"Y", "X"},
	}

	for name, order := range orders {
		for _, honour := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/cancel-aware=%t", name, honour), func(t *testing.T) {
				r := newGatedReconciler("X", "Y")
				r.honourCancel = honour
				s := New(r)
				rec := &recorder{}
				s.OnCommit(rec.listen)

				resX := make(chan loadResult, 1)
				go func() {
					c, err := s.Load(context.Background(), loadRequest("X"))
					resX <- loadResult{c, err}
				}()
				if got := <-r.started; got != "X" {
					t.Fatalf("Expected X to start, got %s", got)
				}

				resY := make(chan loadResult, 1)
				go func() {
					c, err := s.Load(context.Background(), loadRequest("Y"))
					resY <- loadResult{c, err}
				}()
				waitFor(t, func() bool { return s.Generation() == 2 })

				for _, song := range order {
					r.release(song)
				}

				x, y := <-resX, <-resY
				if !errors.Is(x.err, ErrSuperseded) {
					t.Errorf("Expected X to be superseded, got %v", x.err)
				}
				if y.err != nil || y.commit.Document.Lines[0].Text != "Y" {
					t.Errorf("Expected Y to commit, got %+v %v", y.commit, y.err)
				}
				if got := rec.texts(); len(got) != 1 || got[0] != "Y" {
					t.Errorf("Expected only Y committed, got %v", got)
				}
				if cur := s.Current(); cur == nil || cur.Document.Lines[0].Text != "Y" {
					t.Errorf("Expected Y installed, got %+v", cur)
				}
			})
		}
	}
}

func TestSession_BeginSupersedesBeforeRun(t *testing.T) {
	r := newGatedReconciler("X", "Y")
	s := New(r)
	rec := &recorder{}
	s.OnCommit(rec.listen)

	resX := make(chan loadResult, 1)
	go func() {
		c, err := s.Load(context.Background(), loadRequest("X"))
		resX <- loadResult{c, err}
	}()
	<-r.started

	ticket := s.Begin(loadRequest("Y"))
	if ticket.Generation() != 2 || s.Generation() != 2 {
		t.Fatalf("Expected Begin to claim generation 2, got %d", ticket.Generation())
	}

	r.release("X")
	if x := <-resX; !errors.Is(x.err, ErrSuperseded) {
		t.Errorf("Expected X to be superseded before Y ran, got %v", x.err)
	}
	if got := rec.texts(); len(got) != 0 {
		t.Errorf("Expected nothing committed, got %v", got)
	}

	r.release("Y")
	c, err := ticket.Run(context.Background())
	if err != nil || c.Document.Lines[0].Text != "Y" {
		t.Errorf("Expected Y to commit, got %+v %v", c, err)
	}
}

func TestSession_ProvisionalThenFinal(t *testing.T) {
	s := New(funcReconciler(func(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
		provisional := outcomeFor("reference")
		provisional.Provisional = true
		req.OnProvisional(provisional)
		return outcomeFor("final"), nil
	}))
	rec := &recorder{}
	s.OnCommit(rec.listen)
	before := s.stats.ProvisionalCommits.Load()

	if _, err := s.Load(context.Background(), loadRequest("Song")); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := rec.texts(); len(got) != 2 || got[0] != "reference" || got[1] != "final" {
		t.Fatalf("Expected provisional then final, got %v", got)
	}
	if !rec.commits[0].Provisional || rec.commits[1].Provisional {
		t.Error("Expected only the first commit to be provisional")
	}
	if s.stats.ProvisionalCommits.Load()-before != 1 {
		t.Error("Expected the provisional commit to be counted")
	}
}

func TestSession_ProvisionalAfterFinalIsDropped(t *testing.T) {
	s := New(funcReconciler(func(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
		return outcomeFor("final"), nil
	}))
	c, err := s.Load(context.Background(), loadRequest("Song"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err = s.commit(context.Background(), c.Generation, outcomeFor("late"), loadRequest("Song"), true)
	if !errors.Is(err, ErrSuperseded) {
		t.Errorf("Expected late provisional to be rejected, got %v", err)
	}
	if s.Current().Document.Lines[0].Text != "final" {
		t.Error("Final document was replaced")
	}
}

func TestSession_Remap(t *testing.T) {
	original := outcomeFor("video")
	original.RemapRequired = true

	s := New(funcReconciler(func(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
		return original, nil
	}))
	before := s.stats.Remaps.Load()

	req := loadRequest("Song")
	req.MediaIsVideo = true
	req.Segments = []remap.Segment{{PrimaryStartMs: 10000, CounterpartStartMs: 0, DurationMs: 60000}}

	c, err := s.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.Remapped || c.Document.Lines[0].StartTimeMs != 11000 || !c.Document.VideoTimeline {
		t.Errorf("Expected remapped document, got %+v", c)
	}
	if original.Document().Lines[0].StartTimeMs != 1000 {
		t.Error("Expected the reconciled document to be left untouched")
	}
	if s.stats.Remaps.Load()-before != 1 {
		t.Error("Expected the remap to be counted")
	}
}

func TestSession_RemapSkipped(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		segments []remap.Segment
	}{
		{"Timelines agree", false, []remap.Segment{{PrimaryStartMs: 10000, DurationMs: 1000}}},
		{"No segment map", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(funcReconciler(func(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
				o := outcomeFor("song")
				o.RemapRequired = tt.required
				return o, nil
			}))
			req := loadRequest("Song")
			req.MediaIsVideo = true
			req.Segments = tt.segments

			c, err := s.Load(context.Background(), req)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if c.Remapped || c.Document.Lines[0].StartTimeMs != 1000 {
				t.Errorf("Expected no remap, got %+v", c)
			}
		})
	}
}

func TestSession_Cancel(t *testing.T) {
	r := newGatedReconciler("X")
	r.honourCancel = true
	s := New(r)

	res := make(chan loadResult, 1)
	go func() {
		c, err := s.Load(context.Background(), loadRequest("X"))
		res <- loadResult{c, err}
	}()
	<-r.started

	s.Cancel()
	got := <-res
	if !errors.Is(got.err, ErrSuperseded) {
		t.Errorf("Expected ErrSuperseded, got %v", got.err)
	}
	if s.Current() != nil {
		t.Error("Expected nothing committed")
	}
}

func TestSession_CallerCancelled(t *testing.T) {
	r := newGatedReconciler("X")
	r.honourCancel = true
	s := New(r)

	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan loadResult, 1)
	go func() {
		c, err := s.Load(ctx, loadRequest("X"))
		res <- loadResult{c, err}
	}()
	<-r.started

	cancel()
	if got := <-res; !errors.Is(got.err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", got.err)
	}
}

func TestSession_ReconcileError(t *testing.T) {
	boom := errors.New("boom")
	s := New(funcReconciler(func(ctx context.Context, req reconcile.Request) (*reconcile.Outcome, error) {
		return nil, boom
	}))
	if _, err := s.Load(context.Background(), loadRequest("Song")); !errors.Is(err, boom) {
		t.Errorf("Expected the reconciler error, got %v", err)
	}
}
