package lrclib

import (
	"context"
	"encoding/json"
	"errors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestServer(t *testing.T, status int, record *Record, gotQuery *url.Values) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/get" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if gotQuery != nil {
			*gotQuery = r.URL.Query()
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(record)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL + "/")
	client.HTTPClient = server.Client()
	return client
}

func TestLRCLibProvider_Identity(t *testing.T) {
	p := NewProvider(NewClient("http://example.invalid"))

	if p.Name() != "lrclib" {
		t.Errorf("Name() = %q, expected %q", p.Name(), "lrclib")
	}
	got := p.Sources()
	if len(got) != 2 || got[0] != providers.SourceLRCLibSynced || got[1] != providers.SourceLRCLibPlain {
		t.Errorf("Unexpected sources %v", got)
	}

	var _ providers.Provider = p
}

func TestLRCLibProvider_FetchBothPayloads(t *testing.T) {
	var query url.Values
	record := &Record{
		ID:           42,
		SyncedLyrics: "[00:01.00]Hello\n[00:03.00]World",
		PlainLyrics:  "Hello\r\n\r\nWorld\n",
	}
	client := newTestServer(t, http.StatusOK, record, &query)
	p := NewProvider(client)

	results, err := p.Fetch(context.Background(), providers.Params{
		Song: "Song", Artist: "Artist", Album: "Album", DurationSeconds: 10.4,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for key, want := range map[string]string{
		"track_name":  "Song",
		"artist_name": "Artist",
		"album_name":  "Album",
		"duration":    "10",
	} {
		if got := query.Get(key); got != want {
			t.Errorf("Query %s = %q, expected %q", key, got, want)
		}
	}

	synced := results[providers.SourceLRCLibSynced]
	if !synced.HasLines() || synced.Document.SyncGranularity() != lyrics.SyncLine {
		t.Fatalf("Expected line-synced result, got %+v", synced)
	}
	if last := synced.Document.Lines[1]; last.DurationMs != 7400 {
		t.Errorf("Expected final line backfilled to song end, got %d", last.DurationMs)
	}
	if synced.SourceLink != client.BaseURL+"/api/get/42" {
		t.Errorf("Unexpected source link %q", synced.SourceLink)
	}

	plain := results[providers.SourceLRCLibPlain]
	if !plain.HasLines() || plain.Document.SyncGranularity() != lyrics.SyncNone {
		t.Fatalf("Expected unsynced plain result, got %+v", plain)
	}
	if plain.Document.Text() != "Hello\nWorld" {
		t.Errorf("Unexpected plain text %q", plain.Document.Text())
	}
}

func TestLRCLibProvider_PlainOnly(t *testing.T) {
	client := newTestServer(t, http.StatusOK, &Record{PlainLyrics: "Only plain"}, nil)

	results, err := NewProvider(client).Fetch(context.Background(), providers.Params{Song: "s", Artist: "a"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := results[providers.SourceLRCLibSynced]; ok {
		t.Error("Did not expect a synced result")
	}
	if !results[providers.SourceLRCLibPlain].HasLines() {
		t.Error("Expected a plain result")
	}
}

func TestLRCLibProvider_NoLyrics(t *testing.T) {
	tests := []struct {
		name   string
		status int
		record *Record
		params providers.Params
	}{
		{"Missing artist", http.StatusOK, &Record{}, providers.Params{Song: "s"}},
		{"Not found", http.StatusNotFound, nil, providers.Params{Song: "s", Artist: "a"}},
		{"Instrumental", http.StatusOK, &Record{Instrumental: true}, providers.Params{Song: "s", Artist: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(newTestServer(t, tt.status, tt.record, nil))
			_, err := p.Fetch(context.Background(), tt.params)
			if !errors.Is(err, providers.ErrNoLyrics) {
				t.Errorf("Expected ErrNoLyrics, got %v", err)
			}
		})
	}
}

func TestLRCLibProvider_ServerErrorIsFailure(t *testing.T) {
	p := NewProvider(newTestServer(t, http.StatusInternalServerError, nil, nil))

	_, err := p.Fetch(context.Background(), providers.Params{Song: "s", Artist: "a"})
	if err == nil || errors.Is(err, providers.ErrNoLyrics) {
		t.Errorf("Expected a provider failure, got %v", err)
	}
}
