package local

import (
	"context"
	"errors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"
)

const sampleTTML = `<tt xmlns="http://www.w3.org/ns/ttml"><body><div>
<p begin="0:01.000" end="0:02.000"><span begin="0:01.000" end="0:01.500">Hi</span> <span begin="0:01.500" end="0:02.000">there</span></p>
</div></body></tt>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestKeyFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		wantKey string
		wantOK  bool
	}{
		{"Adele - Hello.lrc", Key("adele", "hello"), true},
		{"ADELE  -  Hello.TTML", Key("Adele", "Hello"), true},
		{"Adele - Hello.ttml", Key("Adele", "Hello"), true},
		{"Hello.lrc", "", false},
		{"Adele - Hello.txt", "", false},
		{" - Hello.lrc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := keyFromFilename(tt.name)
			if ok != tt.wantOK || key != tt.wantKey {
				t.Errorf("keyFromFilename(%q) = %q, %t; expected %q, %t", tt.name, key, ok, tt.wantKey, tt.wantOK)
			}
		})
	}
}

func TestIndex_RebuildAndLookup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Adele - Hello.lrc", "[00:01.00]Hello")
	writeFile(t, dir, "Adele - Hello.ttml", sampleTTML)
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub"), "Queen - Bohemian Rhapsody.lrc", "[00:01.00]Is this")

	idx := NewIndex(dir)
	if err := idx.Rebuild(); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("Expected 2 indexed keys, got %d", idx.Len())
	}

	path, ok := idx.Lookup("ADELE", "hello")
	if !ok || !strings.HasSuffix(path, ".ttml") {
		t.Errorf("Expected the .ttml to win, got %q, %t", path, ok)
	}
	if _, ok := idx.Lookup("Queen", "Bohemian  Rhapsody"); !ok {
		t.Error("Expected nested file to be indexed")
	}
	if _, ok := idx.Lookup("Nobody", "Nothing"); ok {
		t.Error("Did not expect a match")
	}
}

func TestIndex_RebuildMissingDir(t *testing.T) {
	idx := NewIndex(filepath.Join(t.TempDir(), "missing"))
	if err := idx.Rebuild(); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}

func TestIndex_WatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex(dir)
	if err := idx.Rebuild(); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- idx.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "Artist - Song.lrc", "[00:01.00]Line")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := idx.Lookup("Artist", "Song"); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("Expected the watcher to index the new file")
}

func TestLocalProvider_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Adele - Hello.lrc", "[00:01.00]Hello\n[00:03.00]It's me")
	p := NewProvider(dir)

	results, err := p.Fetch(context.Background(), providers.Params{Song: "Hello", Artist: "Adele", DurationSeconds: 5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	res := results[providers.SourceLocalSynced]
	if !res.HasLines() || res.Document.SyncGranularity() != lyrics.SyncLine {
		t.Fatalf("Expected a line-synced document, got %+v", res)
	}
	if res.Cacheable {
		t.Error("Local results should not be cached")
	}
	if !strings.HasPrefix(res.SourceLink, "file://") {
		t.Errorf("Unexpected source link %q", res.SourceLink)
	}
}

func TestLocalProvider_FetchTTML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "A - B.ttml", sampleTTML)

	results, err := NewProvider(dir).Fetch(context.Background(), providers.Params{Song: "B", Artist: "A"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := results[providers.SourceLocalSynced].Document.SyncGranularity(); got != lyrics.SyncWord {
		t.Errorf("Expected word granularity, got %s", got)
	}
}

func TestLocalProvider_NoFile(t *testing.T) {
	p := NewProvider(t.TempDir())

	_, err := p.Fetch(context.Background(), providers.Params{Song: "x", Artist: "y"})
	if !errors.Is(err, providers.ErrNoLyrics) {
		t.Errorf("Expected ErrNoLyrics, got %v", err)
	}
}

func TestLocalProvider_Disabled(t *testing.T) {
	p := NewProvider("")

	results, err := p.Fetch(context.Background(), providers.Params{Song: "x", Artist: "y"})
	if results != nil || err != nil {
		t.Errorf("Expected nil, nil when disabled, got %v, %v", results, err)
	}
	if err := p.Watch(context.Background()); err != nil {
		t.Errorf("Watch on a disabled provider should be a no-op, got %v", err)
	}
}

func TestReadFile_GBK(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String("[00:01.00]晴天")
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, t.TempDir(), "a - b.lrc", gbk)

	doc, err := ReadFile(path, 3000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if doc.Lines[0].Text != "晴天" {
		t.Errorf("Expected decoded text, got %q", doc.Lines[0].Text)
	}
}
