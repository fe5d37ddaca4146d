package kugou

import (
	"context"
	"fmt"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/timedtext"

	log "github.com/sirupsen/logrus"
)

const (
	// ProviderName is the identifier for the Kugou provider
	ProviderName = "kugou"

	// SourceLabel is shown to users as the lyrics origin
	SourceLabel = "Kugou"
)

// KugouProvider fills the kugou-synced source
type KugouProvider struct {
	client        *Client
	durationDelta int64
	minScore      float64
}

// NewProvider creates a new Kugou provider instance
func NewProvider(client *Client, durationDeltaMs int64, minScore float64) *KugouProvider {
	return &KugouProvider{client: client, durationDelta: durationDeltaMs, minScore: minScore}
}

// Name returns the provider identifier
func (p *KugouProvider) Name() string {
	return ProviderName
}

// Sources returns the slots one fetch fills
func (p *KugouProvider) Sources() []providers.SourceID {
	return []providers.SourceID{providers.SourceKugouSynced}
}

// Fetch resolves the song hash, picks the best lyrics candidate and parses
// the downloaded LRC.
func (p *KugouProvider) Fetch(ctx context.Context, params providers.Params) (map[providers.SourceID]*providers.Result, error) {
	song, artist := params.Song, params.Artist
	durationMs := params.DurationMs()

	if song == "" && artist == "" {
		return nil, providers.NewProviderError(ProviderName, "song name and artist name cannot both be empty", providers.ErrNoLyrics)
	}

	log.Infof("%s [Kugou] Searching: %s - %s", logcolors.LogSearch, song, artist)

	songs, err := p.client.SearchSongs(ctx, song, artist, 10)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "song search failed", err)
	}
	if len(songs) == 0 {
		return nil, providers.NewProviderError(ProviderName, fmt.Sprintf("no songs found for: %s - %s", song, artist), providers.ErrNoLyrics)
	}

	filtered := songs
	if durationMs > 0 {
		filtered = filterSongsByDuration(songs, durationMs, p.durationDelta)
		if len(filtered) == 0 {
			return nil, providers.NewProviderError(ProviderName,
				fmt.Sprintf("no songs within %dms of duration %dms", p.durationDelta, durationMs), providers.ErrNoLyrics)
		}
		log.Infof("%s [Kugou] %d/%d songs passed duration filter (delta: %dms)",
			logcolors.LogDurationFilter, len(filtered), len(songs), p.durationDelta)
	}

	bestSong, songScore := SelectBestSong(filtered, song, artist, durationMs)
	if songScore < p.minScore {
		return nil, providers.NewProviderError(ProviderName,
			fmt.Sprintf("best match score %.2f below threshold %.2f for: %s - %s", songScore, p.minScore, song, artist),
			providers.ErrNoLyrics)
	}

	hashPreview := bestSong.Hash
	if len(hashPreview) > 16 {
		hashPreview = hashPreview[:16]
	}
	log.Infof("%s [Kugou] Found song: %s - %s (score: %.2f, hash: %s...)",
		logcolors.LogMatch, bestSong.SongName, bestSong.SingerName, songScore, hashPreview)

	candidates, err := p.client.SearchLyrics(ctx, song, artist, durationMs, bestSong.Hash)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "lyrics search failed", err)
	}

	best, matchScore := SelectBestCandidate(candidates, song, artist, durationMs)
	if best == nil {
		return nil, providers.NewProviderError(ProviderName, fmt.Sprintf("no lyrics found for: %s - %s", song, artist), providers.ErrNoLyrics)
	}

	log.Infof("%s [Kugou] Best lyrics match: %s - %s (score: %.2f, type: %d)",
		logcolors.LogMatch, best.Song, best.Singer, matchScore, best.KRCType)

	lrcContent, err := p.client.DownloadLyrics(ctx, best.ID, best.AccessKey)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to download lyrics", err)
	}
	lrcContent = NormalizeLyrics(lrcContent)

	doc, metadata, err := timedtext.ParseLRC(lrcContent, durationMs)
	if err != nil {
		return nil, providers.NewProviderError(ProviderName, "failed to parse LRC", err)
	}

	language := best.Language
	if language == "" {
		language = DetectLanguage(metadata, lrcContent)
	}
	doc.Language = normalizeLanguageCode(language)

	log.Infof("%s [Kugou] Fetched lyrics for: %s - %s (%d lines, %s sync)",
		logcolors.LogSuccess, best.Song, best.Singer, len(doc.Lines), doc.SyncGranularity())

	return map[providers.SourceID]*providers.Result{
		providers.SourceKugouSynced: {
			Document:    doc,
			SourceLabel: SourceLabel,
			Cacheable:   true,
		},
	}, nil
}

// init registers the Kugou provider with the global registry
func init() {
	conf := config.Get()
	providers.Register(NewProvider(
		NewClient(),
		int64(conf.Configuration.DurationMatchDeltaMs),
		conf.Configuration.MinSimilarityScore,
	))
}
