package legacy

import (
	"context"
	"fmt"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the legacy provider
	ProviderName = "legacy"

	// SourceLabel is shown to users as the lyrics origin
	SourceLabel = "Legacy"
)

// LegacyProvider fills the legacy-synced source. The upstream only carries
// line timings.
type LegacyProvider struct {
	client        *Client
	durationDelta int64
}

// NewProvider creates a new legacy provider instance
func NewProvider(client *Client, durationDeltaMs int64) *LegacyProvider {
	return &LegacyProvider{client: client, durationDelta: durationDeltaMs}
}

// Name returns the provider identifier
func (p *LegacyProvider) Name() string {
	return ProviderName
}

// Sources returns the slots one fetch fills
func (p *LegacyProvider) Sources() []providers.SourceID {
	return []providers.SourceID{providers.SourceLegacySynced}
}

// Fetch searches for the track and converts its lyrics to a document
func (p *LegacyProvider) Fetch(ctx context.Context, params providers.Params) (map[providers.SourceID]*providers.Result, error) {
	if !p.client.Configured() {
		log.Debugf("%s [Legacy] Client not configured, skipping", logcolors.LogRequest)
		return nil, nil
	}
	if params.Song == "" && params.Artist == "" {
		return nil, providers.NewProviderError(ProviderName, "song name and artist name cannot both be empty", providers.ErrNoLyrics)
	}

	query := strings.TrimSpace(params.Song + " " + params.Artist)
	log.Infof("%s [Legacy] Searching: %s", logcolors.LogSearch, query)

	items, err := p.client.SearchTracks(ctx, query)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "track search failed", err)
	}

	track := pickTrack(items, params.DurationMs(), p.durationDelta)
	if track == nil {
		return nil, providers.NewProviderError(ProviderName, fmt.Sprintf("no track found for: %s", query), providers.ErrNoLyrics)
	}
	log.Infof("%s [Legacy] Found track: %s (ID: %s)", logcolors.LogMatch, track.Name, track.ID)

	data, err := p.client.FetchLyrics(ctx, track.ID)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to fetch lyrics", err)
	}
	if len(data.Lines) == 0 {
		return nil, providers.NewProviderError(ProviderName, "no lyrics available for track", providers.ErrNoLyrics)
	}

	doc := toDocument(data, track.DurationMs)

	log.Infof("%s [Legacy] Fetched lyrics for: %s (%d lines, %s sync)",
		logcolors.LogSuccess, track.Name, len(doc.Lines), doc.SyncGranularity())

	return map[providers.SourceID]*providers.Result{
		providers.SourceLegacySynced: {
			Document:    doc,
			SourceLabel: SourceLabel,
			Cacheable:   true,
		},
	}, nil
}

// toDocument converts legacy lines. Unsynced payloads keep zero start times;
// durations come from the next line's start or the track end.
func toDocument(data *LyricsData, trackDurationMs int64) *lyrics.Document {
	unsynced := strings.EqualFold(data.SyncType, "UNSYNCED")
	doc := &lyrics.Document{
		Lines:    make([]lyrics.Line, 0, len(data.Lines)),
		Language: data.Language,
	}

	for _, ll := range data.Lines {
		text := strings.TrimSpace(ll.Words)
		if text == "" || text == "♪" {
			continue
		}
		line := lyrics.Line{Text: text}
		if !unsynced {
			line.StartTimeMs, _ = strconv.ParseInt(ll.StartTimeMs, 10, 64)
			if end, err := strconv.ParseInt(ll.EndTimeMs, 10, 64); err == nil && end > line.StartTimeMs {
				line.DurationMs = end - line.StartTimeMs
			}
		}
		doc.Lines = append(doc.Lines, line)
	}

	doc.SortLines()
	if !unsynced {
		doc.BackfillDurations(trackDurationMs)
	}
	return doc
}

// init registers the legacy provider with the global registry
func init() {
	providers.Register(NewProvider(NewClientFromConfig(), int64(config.Get().Configuration.DurationMatchDeltaMs)))
}
