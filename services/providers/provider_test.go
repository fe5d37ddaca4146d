package providers

import (
	"context"
	"errors"
	"lyrics-sync-go/circuitbreaker"
	"lyrics-sync-go/services/lyrics"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockProvider is a configurable provider for testing
type mockProvider struct {
	name    string
	sources []SourceID
	results map[SourceID]*Result
	err     error
	panics  bool
	delay   time.Duration
	calls   atomic.Int32
	gotMu   sync.Mutex
	got     []Params
}

func (m *mockProvider) Name() string        { return m.name }
func (m *mockProvider) Sources() []SourceID { return m.sources }

func (m *mockProvider) Fetch(ctx context.Context, params Params) (map[SourceID]*Result, error) {
	m.calls.Add(1)
	m.gotMu.Lock()
	m.got = append(m.got, params)
	m.gotMu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.panics {
		panic("boom")
	}
	return m.results, m.err
}

func textResult(text string) *Result {
	return &Result{Document: &lyrics.Document{Lines: []lyrics.Line{{Text: text}}}, Cacheable: true}
}

func newTestRegistry(providers ...Provider) *Registry {
	r := NewRegistry(time.Second, circuitbreaker.Config{Threshold: 2, Cooldown: time.Minute})
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	ttml := &mockProvider{name: "ttml", sources: []SourceID{SourceTTMLWord, SourceTTMLLine}}
	kugou := &mockProvider{name: "kugou", sources: []SourceID{SourceKugouSynced}}
	r := newTestRegistry(kugou, ttml)

	if !r.Has("ttml") || r.Has("missing") {
		t.Error("Has() returned unexpected results")
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"kugou", "ttml"}) {
		t.Errorf("Expected sorted names, got %v", got)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("Expected error for missing provider")
	}

	p, ok := r.ProviderFor(SourceTTMLLine)
	if !ok || p.Name() != "ttml" {
		t.Errorf("Expected ttml to serve %s", SourceTTMLLine)
	}
	if r.Breaker("kugou") == nil {
		t.Error("Expected a breaker per provider")
	}
	if len(r.BreakerStatuses()) != 2 {
		t.Errorf("Expected 2 breaker statuses, got %d", len(r.BreakerStatuses()))
	}
}

func TestRegistry_ReRegisterMovesSource(t *testing.T) {
	r := newTestRegistry(&mockProvider{name: "old", sources: []SourceID{SourceLocalSynced}})
	r.Register(&mockProvider{name: "new", sources: []SourceID{SourceLocalSynced}})

	p, _ := r.ProviderFor(SourceLocalSynced)
	if p.Name() != "new" {
		t.Errorf("Expected the latest provider to own the source, got %s", p.Name())
	}
}

func TestQuery_FillOnceAcrossSources(t *testing.T) {
	ttml := &mockProvider{
		name:    "ttml",
		sources: []SourceID{SourceTTMLWord, SourceTTMLLine},
		results: map[SourceID]*Result{
			SourceTTMLWord: textResult("word"),
			SourceTTMLLine: textResult("line"),
		},
	}
	q := newTestRegistry(ttml).NewQuery(Params{Song: "s"})

	if q.Filled(SourceTTMLLine) {
		t.Error("Expected no slot before the first fetch")
	}

	word := q.Fetch(context.Background(), SourceTTMLWord)
	if !q.Filled(SourceTTMLLine) {
		t.Error("Expected the sibling slot to be filled by the same fetch")
	}
	line := q.Fetch(context.Background(), SourceTTMLLine)
	again := q.Fetch(context.Background(), SourceTTMLWord)

	if word.Document.Lines[0].Text != "word" || line.Document.Lines[0].Text != "line" {
		t.Errorf("Unexpected results %v / %v", word, line)
	}
	if again != word {
		t.Error("Expected the cached result on repeat fetch")
	}
	if calls := ttml.calls.Load(); calls != 1 {
		t.Errorf("Expected exactly one provider call, got %d", calls)
	}
}

func TestQuery_ConcurrentFetchSharesInvocation(t *testing.T) {
	ttml := &mockProvider{
		name:    "ttml",
		sources: []SourceID{SourceTTMLWord, SourceTTMLLine},
		results: map[SourceID]*Result{SourceTTMLWord: textResult("w")},
		delay:   50 * time.Millisecond,
	}
	q := newTestRegistry(ttml).NewQuery(Params{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		id := SourceTTMLWord
		if i%2 == 1 {
			id = SourceTTMLLine
		}
		go func(id SourceID) {
			defer wg.Done()
			res := q.Fetch(context.Background(), id)
			if id == SourceTTMLWord && !res.HasLines() {
				t.Error("Expected word result for every waiter")
			}
			if id == SourceTTMLLine && res != nil {
				t.Error("Expected nil for a source the provider did not fill")
			}
		}(id)
	}
	wg.Wait()

	if calls := ttml.calls.Load(); calls != 1 {
		t.Errorf("Expected one provider call, got %d", calls)
	}
}

func TestQuery_FailuresFillWithNil(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockProvider
	}{
		{"Error", &mockProvider{name: "p", sources: []SourceID{SourceKugouSynced}, err: errors.New("network down")}},
		{"Panic", &mockProvider{name: "p", sources: []SourceID{SourceKugouSynced}, panics: true}},
		{"Nil document", &mockProvider{name: "p", sources: []SourceID{SourceKugouSynced},
			results: map[SourceID]*Result{SourceKugouSynced: {SourceLabel: "x"}}}},
		{"Timeout", &mockProvider{name: "p", sources: []SourceID{SourceKugouSynced}, delay: 5 * time.Second,
			results: map[SourceID]*Result{SourceKugouSynced: textResult("late")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(100*time.Millisecond, circuitbreaker.Config{Threshold: 5})
			r.Register(tt.provider)
			q := r.NewQuery(Params{})

			if res := q.Fetch(context.Background(), SourceKugouSynced); res != nil {
				t.Errorf("Expected nil result, got %+v", res)
			}
			if !q.Filled(SourceKugouSynced) {
				t.Error("Expected slot to be filled after failure")
			}
			q.Fetch(context.Background(), SourceKugouSynced)
			if calls := tt.provider.calls.Load(); calls != 1 {
				t.Errorf("Expected no retry within the query, got %d calls", calls)
			}
		})
	}
}

func TestQuery_UnknownSource(t *testing.T) {
	q := newTestRegistry().NewQuery(Params{})
	if res := q.Fetch(context.Background(), SourceID("nope")); res != nil {
		t.Errorf("Expected nil for unknown source, got %+v", res)
	}
	if !q.Filled(SourceID("nope")) {
		t.Error("Expected unknown source slot to be filled")
	}
}

func TestQuery_SetParamsAffectsLaterFetches(t *testing.T) {
	kugou := &mockProvider{name: "kugou", sources: []SourceID{SourceKugouSynced}}
	lrclib := &mockProvider{name: "lrclib", sources: []SourceID{SourceLRCLibSynced}}
	q := newTestRegistry(kugou, lrclib).NewQuery(Params{Song: "wrong"})

	q.Fetch(context.Background(), SourceKugouSynced)
	q.SetParams(Params{Song: "right"})
	q.Fetch(context.Background(), SourceLRCLibSynced)

	if kugou.got[0].Song != "wrong" || lrclib.got[0].Song != "right" {
		t.Errorf("Unexpected params: kugou=%q lrclib=%q", kugou.got[0].Song, lrclib.got[0].Song)
	}
	if q.Params().Song != "right" {
		t.Errorf("Expected corrected params, got %+v", q.Params())
	}
}

func TestQuery_BreakerOpensAcrossQueries(t *testing.T) {
	flaky := &mockProvider{name: "flaky", sources: []SourceID{SourceLegacySynced}, err: errors.New("500")}
	r := newTestRegistry(flaky)

	for i := 0; i < 3; i++ {
		r.NewQuery(Params{}).Fetch(context.Background(), SourceLegacySynced)
	}

	if calls := flaky.calls.Load(); calls != 2 {
		t.Errorf("Expected the open breaker to block the third call, got %d calls", calls)
	}
	q := r.NewQuery(Params{})
	q.Fetch(context.Background(), SourceLegacySynced)
	if !errors.Is(q.Err(SourceLegacySynced), circuitbreaker.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", q.Err(SourceLegacySynced))
	}

	r.ResetBreakers()
	r.NewQuery(Params{}).Fetch(context.Background(), SourceLegacySynced)
	if calls := flaky.calls.Load(); calls != 3 {
		t.Errorf("Expected a call after reset, got %d", calls)
	}
}

func TestQuery_NoLyricsDoesNotTripBreaker(t *testing.T) {
	empty := &mockProvider{name: "empty", sources: []SourceID{SourceLRCLibSynced}, err: ErrNoLyrics}
	r := newTestRegistry(empty)

	for i := 0; i < 5; i++ {
		r.NewQuery(Params{}).Fetch(context.Background(), SourceLRCLibSynced)
	}
	if calls := empty.calls.Load(); calls != 5 {
		t.Errorf("Expected every query to reach the provider, got %d", calls)
	}
	if r.Breaker("empty").State() != circuitbreaker.StateClosed {
		t.Error("Expected breaker to stay closed")
	}
}

func TestQuery_VideoTimelineCopiedToDocument(t *testing.T) {
	res := textResult("v")
	res.VideoTimeline = true
	p := &mockProvider{name: "p", sources: []SourceID{SourceHostPlain}, results: map[SourceID]*Result{SourceHostPlain: res}}

	got := newTestRegistry(p).NewQuery(Params{}).Fetch(context.Background(), SourceHostPlain)
	if !got.Document.VideoTimeline {
		t.Error("Expected document to carry the video timeline flag")
	}
}

func TestQuery_WaiterHonoursContext(t *testing.T) {
	slow := &mockProvider{name: "slow", sources: []SourceID{SourceTTMLWord}, delay: 500 * time.Millisecond,
		results: map[SourceID]*Result{SourceTTMLWord: textResult("x")}}
	q := newTestRegistry(slow).NewQuery(Params{})

	go q.Fetch(context.Background(), SourceTTMLWord)
	for !q.slotExists(SourceTTMLWord) {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if res := q.Fetch(ctx, SourceTTMLWord); res != nil {
		t.Error("Expected waiter to give up when its context ends")
	}
}

func (q *Query) slotExists(id SourceID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.slots[id]
	return ok
}

func TestQuery_TrackInfoFromSiblingSource(t *testing.T) {
	track := &TrackInfo{Song: "Real Song", Artist: "Real Artist", DurationMs: 200000}
	line := textResult("line")
	line.Track = track
	ttml := &mockProvider{
		name:    "ttml",
		sources: []SourceID{SourceTTMLWord, SourceTTMLLine},
		results: map[SourceID]*Result{SourceTTMLLine: line},
	}
	q := newTestRegistry(ttml).NewQuery(Params{Song: "wrong"})

	if q.TrackInfo(SourceTTMLWord) != nil {
		t.Error("Expected no track info before any fetch")
	}
	if q.Fetch(context.Background(), SourceTTMLWord) != nil {
		t.Error("Expected ttml-word to be empty")
	}
	if got := q.TrackInfo(SourceTTMLWord); got != track {
		t.Errorf("Expected track info from ttml-line, got %+v", got)
	}

	corrected := q.TrackInfo(SourceTTMLWord).Apply(q.Params())
	if corrected.Song != "Real Song" || corrected.DurationSeconds != 200 {
		t.Errorf("Unexpected corrected params %+v", corrected)
	}
}

func TestValidateOrder(t *testing.T) {
	full := []string{
		"kugou-synced", "ttml-word", "d_lrclib-synced", "legacy-synced",
		"local-synced", "ttml-line", "lrclib-plain", "host-plain",
	}

	tests := []struct {
		name         string
		custom       []string
		wantRejected bool
		wantFirst    string
	}{
		{"Empty uses default", nil, false, "ttml-word"},
		{"Valid reorder", full, false, "kugou-synced"},
		{"Missing built-in", full[:7], true, "ttml-word"},
		{"Unknown source", append(append([]string{}, full...), "genius"), true, "ttml-word"},
		{"Duplicate", append(append([]string{}, full...), "d_kugou-synced"), true, "ttml-word"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, rejected := ValidateOrder(tt.custom)
			if rejected != tt.wantRejected {
				t.Errorf("Expected rejected=%v, got %v", tt.wantRejected, rejected)
			}
			if order[0].String() != tt.wantFirst {
				t.Errorf("Expected first entry %q, got %q", tt.wantFirst, order[0].String())
			}
			if len(order) != len(DefaultOrder) {
				t.Errorf("Expected %d entries, got %d", len(DefaultOrder), len(order))
			}
		})
	}
}

func TestEnabledSkipsDisabledEntries(t *testing.T) {
	order := []OrderEntry{
		ParseOrderEntry("ttml-word"),
		ParseOrderEntry("d_kugou-synced"),
		ParseOrderEntry(" lrclib-synced "),
	}
	want := []SourceID{SourceTTMLWord, SourceLRCLibSynced}
	if got := Enabled(order); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got := OrderStrings(order); !reflect.DeepEqual(got, []string{"ttml-word", "d_kugou-synced", "lrclib-synced"}) {
		t.Errorf("Unexpected round trip %v", got)
	}
}

func TestGetRegistry_Singleton(t *testing.T) {
	if GetRegistry() != GetRegistry() {
		t.Error("GetRegistry should return the same instance")
	}
}
