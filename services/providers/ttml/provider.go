package ttml

import (
	"context"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/timedtext"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the TTML provider
	ProviderName = "ttml"

	// SourceLabel is shown to users as the lyrics origin
	SourceLabel = "TTML Catalog"
)

// TTMLProvider fills the ttml-word and ttml-line sources from one catalog lookup.
type TTMLProvider struct {
	client *Client
}

// NewProvider creates a new TTML provider instance
func NewProvider(client *Client) *TTMLProvider {
	return &TTMLProvider{client: client}
}

// Name returns the provider identifier
func (p *TTMLProvider) Name() string {
	return ProviderName
}

// Sources returns the slots one fetch fills
func (p *TTMLProvider) Sources() []providers.SourceID {
	return []providers.SourceID{providers.SourceTTMLWord, providers.SourceTTMLLine}
}

// Fetch searches the catalog, downloads the timed-text document and parses it.
// A word-synced document fills both sources; the line source gets a copy
// without parts.
func (p *TTMLProvider) Fetch(ctx context.Context, params providers.Params) (map[providers.SourceID]*providers.Result, error) {
	if !p.client.Configured() {
		log.Debugf("%s TTML client not configured, skipping", logcolors.LogRequest)
		return nil, nil
	}

	track, score, err := p.client.SearchTrack(ctx, params)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "search failed", err)
	}

	raw, err := p.client.FetchTTML(ctx, track.ID)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to fetch lyrics", err)
	}

	doc, err := timedtext.ParseTTML(raw, track.Attributes.DurationInMillis)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to parse lyrics", err)
	}

	info := &providers.TrackInfo{
		Song:       track.Attributes.Name,
		Artist:     track.Attributes.ArtistName,
		Album:      track.Attributes.AlbumName,
		DurationMs: track.Attributes.DurationInMillis,
	}
	result := func(d *lyrics.Document) *providers.Result {
		return &providers.Result{
			Document:    d,
			SourceLabel: SourceLabel,
			SourceLink:  track.Attributes.URL,
			Cacheable:   true,
			Track:       info,
		}
	}

	log.Infof("%s %s - %s via %s (score %.3f, %s sync, %d lines)", logcolors.LogSuccess,
		info.Song, info.Artist, logcolors.Source(ProviderName), score, doc.SyncGranularity(), len(doc.Lines))

	out := make(map[providers.SourceID]*providers.Result, 2)
	if doc.SyncGranularity() == lyrics.SyncWord {
		out[providers.SourceTTMLWord] = result(doc)
		out[providers.SourceTTMLLine] = result(doc.StripParts())
	} else {
		out[providers.SourceTTMLLine] = result(doc)
	}
	return out, nil
}

// init registers the TTML provider with the global registry
func init() {
	providers.Register(NewProvider(NewClientFromConfig()))
}
