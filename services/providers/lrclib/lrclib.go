package lrclib

import (
	"context"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/timedtext"
	"strconv"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the LRCLIB provider
	ProviderName = "lrclib"

	// SourceLabel is shown to users as the lyrics origin
	SourceLabel = "LRCLIB"
)

// LRCLibProvider fills lrclib-synced from the LRC payload and lrclib-plain
// from the plain text, both from one request.
type LRCLibProvider struct {
	client *Client
}

// NewProvider creates a new LRCLIB provider instance
func NewProvider(client *Client) *LRCLibProvider {
	return &LRCLibProvider{client: client}
}

// Name returns the provider identifier
func (p *LRCLibProvider) Name() string {
	return ProviderName
}

// Sources returns the slots one fetch fills
func (p *LRCLibProvider) Sources() []providers.SourceID {
	return []providers.SourceID{providers.SourceLRCLibSynced, providers.SourceLRCLibPlain}
}

// Fetch requests the record and converts both payloads
func (p *LRCLibProvider) Fetch(ctx context.Context, params providers.Params) (map[providers.SourceID]*providers.Result, error) {
	if params.Song == "" || params.Artist == "" {
		return nil, providers.NewProviderError(ProviderName, "song and artist are required", providers.ErrNoLyrics)
	}

	log.Infof("%s [LRCLIB] Looking up: %s - %s", logcolors.LogSearch, params.Artist, params.Song)

	record, err := p.client.Get(ctx, params)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "lookup failed", err)
	}

	link := ""
	if record.ID > 0 {
		link = p.client.BaseURL + "/api/get/" + strconv.FormatInt(record.ID, 10)
	}
	results := make(map[providers.SourceID]*providers.Result, 2)

	if record.SyncedLyrics != "" {
		doc, _, err := timedtext.ParseLRC(record.SyncedLyrics, params.DurationMs())
		if err != nil {
			log.Warnf("%s [LRCLIB] Synced lyrics unparseable for record %d: %v", logcolors.LogWarning, record.ID, err)
		} else {
			results[providers.SourceLRCLibSynced] = &providers.Result{
				Document:    doc,
				SourceLabel: SourceLabel,
				SourceLink:  link,
				Cacheable:   true,
			}
		}
	}

	if plain := lyrics.FromPlainText(record.PlainLyrics); plain != nil {
		results[providers.SourceLRCLibPlain] = &providers.Result{
			Document:    plain,
			SourceLabel: SourceLabel,
			SourceLink:  link,
			Cacheable:   true,
		}
	}

	if len(results) == 0 {
		return nil, providers.NewProviderError(ProviderName, "record carries no lyrics", providers.ErrNoLyrics)
	}

	log.Infof("%s [LRCLIB] Record %d: synced=%t plain=%t", logcolors.LogSuccess, record.ID,
		results[providers.SourceLRCLibSynced] != nil, results[providers.SourceLRCLibPlain] != nil)
	return results, nil
}

// init registers the LRCLIB provider with the global registry
func init() {
	providers.Register(NewProvider(NewClientFromConfig()))
}
