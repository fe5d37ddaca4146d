package translate

import (
	"context"
	"errors"
	"lyrics-sync-go/services/lyrics"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func newGtxServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client") != "gtx" || q.Get("q") == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if len(q["dt"]) == 2 && q["dt"][1] == "rm" {
			w.Write([]byte(`[[["Hello","こんにちは",null,null,10],[null,null,"Hello","konnichiwa"]],null,"ja"]`))
			return
		}
		switch q.Get("q") {
		case "bonjour\nmonde":
			w.Write([]byte(`[[["hello\n","bonjour\n",null,null,10],["world","monde",null,null,10]],null,"fr"]`))
		case "vide":
			w.Write([]byte(`[null,null,"fr"]`))
		default:
			w.Write([]byte(`[[["` + strings.ToUpper(q.Get("q")) + `","x",null,null,10]],null,"fr"]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Translate(t *testing.T) {
	c := NewClient(newGtxServer(t).URL)

	got, err := c.Translate(context.Background(), "bonjour\nmonde", "en")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "hello\nworld" {
		t.Errorf("Expected sentences joined, got %q", got)
	}

	if _, err := c.Translate(context.Background(), "vide", "en"); !errors.Is(err, ErrNoResult) {
		t.Errorf("Expected ErrNoResult, got %v", err)
	}
}

func TestClient_Romanize(t *testing.T) {
	c := NewClient(newGtxServer(t).URL)

	got, err := c.Romanize(context.Background(), "こんにちは", "ja")
	if err != nil {
		t.Fatalf("Romanize: %v", err)
	}
	if got != "konnichiwa" {
		t.Errorf("Expected konnichiwa, got %q", got)
	}
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Translate(context.Background(), "x", "en"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Expected a status error, got %v", err)
	}
	if _, err := NewClient("").Translate(context.Background(), "x", "en"); err == nil {
		t.Error("Expected an error for an unconfigured endpoint")
	}
}

// fakeTranslator upper-cases for Translate and prefixes for Romanize.
type fakeTranslator struct {
	mu       sync.Mutex
	calls    []string
	failText string
	dropLine bool
}

func (f *fakeTranslator) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	f.record("t:" + text)
	if f.failText != "" && strings.Contains(text, f.failText) {
		return "", errors.New("unavailable")
	}
	if f.dropLine && strings.Contains(text, "\n") {
		return strings.ToUpper(strings.SplitN(text, "\n", 2)[0]), nil
	}
	return strings.ToUpper(text), nil
}

func (f *fakeTranslator) Romanize(ctx context.Context, text, lang string) (string, error) {
	f.record("r:" + text)
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = "roman(" + lines[i] + ")"
	}
	return strings.Join(lines, "\n"), nil
}

func docOf(lang string, texts ...string) *lyrics.Document {
	doc := &lyrics.Document{Language: lang}
	for i, text := range texts {
		doc.Lines = append(doc.Lines, lyrics.Line{StartTimeMs: int64(i+1) * 1000, DurationMs: 1000, Text: text})
	}
	return doc
}

func TestFill_Translation(t *testing.T) {
	tr := &fakeTranslator{}
	doc := docOf("fr", "bonjour", "", "monde")
	doc.Lines[2].Translation = &lyrics.Translation{Text: "existing", Lang: "en"}

	if err := Fill(context.Background(), tr, doc, Options{TargetLang: "en"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	if tr := doc.Lines[0].Translation; tr == nil || tr.Text != "BONJOUR" || tr.Lang != "en" {
		t.Errorf("Unexpected translation %+v", tr)
	}
	if doc.Lines[1].Translation != nil {
		t.Error("Expected blank lines to be skipped")
	}
	if doc.Lines[2].Translation.Text != "existing" {
		t.Error("Expected existing translations to be kept")
	}
	if len(tr.calls) != 1 {
		t.Errorf("Expected one batched call, got %v", tr.calls)
	}
}

func TestFill_SameLanguageSkipped(t *testing.T) {
	tr := &fakeTranslator{}
	doc := docOf("en-US", "hello")
	if err := Fill(context.Background(), tr, doc, Options{TargetLang: "en"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if len(tr.calls) != 0 || doc.Lines[0].Translation != nil {
		t.Errorf("Expected no translation into the document language, got %v", tr.calls)
	}
}

func TestFill_FallsBackPerLine(t *testing.T) {
	tr := &fakeTranslator{dropLine: true}
	doc := docOf("fr", "un", "deux")

	if err := Fill(context.Background(), tr, doc, Options{TargetLang: "en"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if doc.Lines[0].Translation.Text != "UN" || doc.Lines[1].Translation.Text != "DEUX" {
		t.Errorf("Unexpected translations %+v %+v", doc.Lines[0].Translation, doc.Lines[1].Translation)
	}
	if len(tr.calls) != 3 {
		t.Errorf("Expected the batch and two single calls, got %v", tr.calls)
	}
}

func TestFill_PartialFailure(t *testing.T) {
	tr := &fakeTranslator{failText: "deux"}
	doc := docOf("fr", "un", "deux")

	if err := Fill(context.Background(), tr, doc, Options{TargetLang: "en"}); err != nil {
		t.Fatalf("Expected partial success to be reported as success, got %v", err)
	}
	if doc.Lines[0].Translation == nil || doc.Lines[1].Translation != nil {
		t.Errorf("Expected only the first line translated, got %+v", doc.Lines)
	}

	doc = docOf("fr", "deux")
	if err := Fill(context.Background(), tr, doc, Options{TargetLang: "en"}); err == nil {
		t.Error("Expected an error when nothing could be filled")
	}
}

func TestFill_Romanization(t *testing.T) {
	tr := &fakeTranslator{}
	doc := docOf("ja", "こんにちは", "hello", "世界")
	doc.Lines[2].TimedRomanization = []lyrics.Part{{StartTimeMs: 3000, DurationMs: 1000, Text: "sekai"}}

	if err := Fill(context.Background(), tr, doc, Options{Romanize: true}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if doc.Lines[0].Romanization != "roman(こんにちは)" {
		t.Errorf("Unexpected romanization %q", doc.Lines[0].Romanization)
	}
	if doc.Lines[1].Romanization != "" || doc.Lines[2].Romanization != "" {
		t.Error("Expected Latin and already romanized lines to be skipped")
	}
}

func TestFill_NotFoundIgnored(t *testing.T) {
	tr := &fakeTranslator{}
	if err := Fill(context.Background(), tr, lyrics.NotFound(), Options{TargetLang: "en", Romanize: true}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if len(tr.calls) != 0 {
		t.Errorf("Expected no calls for the sentinel, got %v", tr.calls)
	}
}

func TestMemo(t *testing.T) {
	tr := &fakeTranslator{failText: "bad"}
	m := NewMemo(tr, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if got, _ := m.Translate(ctx, "a", "en"); got != "A" {
			t.Fatalf("Unexpected translation %q", got)
		}
	}
	m.Romanize(ctx, "a", "ja")
	if len(tr.calls) != 2 {
		t.Errorf("Expected one call per operation, got %v", tr.calls)
	}

	if _, err := m.Translate(ctx, "bad", "en"); err == nil {
		t.Fatal("Expected the error to pass through")
	}
	m.Translate(ctx, "bad", "en")
	if len(tr.calls) != 4 {
		t.Errorf("Expected failures not to be remembered, got %v", tr.calls)
	}

	m.Translate(ctx, "b", "en")
	if m.Len() != 2 {
		t.Errorf("Expected the memo bounded at 2, got %d", m.Len())
	}
}
