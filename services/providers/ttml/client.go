package ttml

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/providers"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Client talks to the TTML catalog API.
type Client struct {
	BaseURL        string
	SearchPath     string
	LyricsPath     string
	Storefront     string
	BearerToken    string
	MediaUserToken string
	DurationDelta  int64
	MinScore       float64
	HTTPClient     *http.Client
}

// NewClientFromConfig builds a client from the global configuration.
func NewClientFromConfig() *Client {
	conf := config.Get()
	return &Client{
		BaseURL:        strings.TrimRight(conf.Configuration.TTMLBaseURL, "/"),
		SearchPath:     conf.Configuration.TTMLSearchPath,
		LyricsPath:     conf.Configuration.TTMLLyricsPath,
		Storefront:     conf.Configuration.TTMLStorefront,
		BearerToken:    conf.Configuration.TTMLBearerToken,
		MediaUserToken: conf.Configuration.TTMLMediaUserToken,
		DurationDelta:  int64(conf.Configuration.DurationMatchDeltaMs),
		MinScore:       conf.Configuration.MinSimilarityScore,
		HTTPClient:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the client has an endpoint and a token.
func (c *Client) Configured() bool {
	return c.BaseURL != "" && c.BearerToken != ""
}

func (c *Client) storefront() string {
	if c.Storefront == "" {
		return "us" // Default to US storefront
	}
	return c.Storefront
}

// =============================================================================
// STRING SIMILARITY & SCORING
// =============================================================================

// normalizeString normalizes a string for comparison
func normalizeString(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// stringSimilarity calculates similarity between two strings (0.0 to 1.0)
// Uses a combination of exact match, contains, and character overlap
func stringSimilarity(s1, s2 string) float64 {
	if s1 == "" || s2 == "" {
		return 0.0
	}

	n1 := normalizeString(s1)
	n2 := normalizeString(s2)

	if n1 == n2 {
		return 1.0
	}

	if strings.Contains(n1, n2) || strings.Contains(n2, n1) {
		shorter := min(len(n1), len(n2))
		longer := max(len(n1), len(n2))
		return 0.7 + (0.3 * float64(shorter) / float64(longer))
	}

	chars1 := make(map[rune]int)
	chars2 := make(map[rune]int)
	for _, c := range n1 {
		chars1[c]++
	}
	for _, c := range n2 {
		chars2[c]++
	}

	overlap := 0
	for c, count1 := range chars1 {
		if count2, exists := chars2[c]; exists {
			overlap += min(count1, count2)
		}
	}

	total := len([]rune(n1)) + len([]rune(n2))
	if total == 0 {
		return 0.0
	}
	return float64(overlap*2) / float64(total)
}

// scoreTrack calculates a weighted score for a track based on multiple factors.
// Duration filtering is a strict requirement handled before scoring.
func scoreTrack(track *Track, songName, artistName, albumName string) TrackScore {
	const (
		nameWeight   = 0.50
		artistWeight = 0.375
		albumWeight  = 0.125
	)

	score := TrackScore{Track: track}
	score.NameScore = stringSimilarity(track.Attributes.Name, songName)
	score.ArtistScore = stringSimilarity(track.Attributes.ArtistName, artistName)
	score.AlbumScore = stringSimilarity(track.Attributes.AlbumName, albumName)
	score.TotalScore = (score.NameScore * nameWeight) +
		(score.ArtistScore * artistWeight) +
		(score.AlbumScore * albumWeight)
	return score
}

// filterByDuration keeps tracks within delta of durationMs. When nothing
// passes, the error names the closest candidate.
func filterByDuration(tracks []Track, durationMs, delta int64) ([]Track, error) {
	var filtered []Track
	var closest *Track
	closestDiff := int64(-1)

	for i, track := range tracks {
		diff := track.Attributes.DurationInMillis - durationMs
		if diff < 0 {
			diff = -diff
		}
		if closestDiff < 0 || diff < closestDiff {
			closestDiff = diff
			closest = &tracks[i]
		}
		if diff <= delta {
			filtered = append(filtered, track)
			continue
		}
		log.Debugf("%s Rejected %s - %s (duration: %dms, diff: %dms, max delta: %dms)",
			logcolors.LogDurationFilter, track.Attributes.Name, track.Attributes.ArtistName,
			track.Attributes.DurationInMillis, diff, delta)
	}

	if len(filtered) == 0 {
		if closest != nil {
			return nil, fmt.Errorf("no tracks within %dms of %dms (closest: %s - %s, diff %dms): %w",
				delta, durationMs, closest.Attributes.Name, closest.Attributes.ArtistName, closestDiff, providers.ErrNoLyrics)
		}
		return nil, fmt.Errorf("no tracks within %dms of %dms: %w", delta, durationMs, providers.ErrNoLyrics)
	}

	log.Infof("%s %d/%d tracks passed duration filter (delta: %dms)", logcolors.LogDurationFilter, len(filtered), len(tracks), delta)
	return filtered, nil
}

// =============================================================================
// HTTP REQUEST HANDLING
// =============================================================================

func (c *Client) get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	if c.MediaUserToken != "" {
		req.Header.Set("media-user-token", c.MediaUserToken)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Errorf("%s Request failed: %v", logcolors.LogHTTP, err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, providers.ErrNoLyrics
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		log.Warnf("%s TTML API rejected credentials (status %d)", logcolors.LogAuthError, resp.StatusCode)
		return nil, fmt.Errorf("TTML API returned status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		log.Warnf("%s TTML API rate limited (Retry-After=%q)", logcolors.LogRateLimit, resp.Header.Get("Retry-After"))
		return nil, fmt.Errorf("TTML API returned status 429")
	case resp.StatusCode != http.StatusOK:
		log.Errorf("%s Unexpected status %d: %s", logcolors.LogHTTP, resp.StatusCode, string(body))
		return nil, fmt.Errorf("TTML API returned status %d", resp.StatusCode)
	}
	return body, nil
}

// =============================================================================
// API FUNCTIONS
// =============================================================================

// SearchTrack finds the best catalog match for the query parameters.
func (c *Client) SearchTrack(ctx context.Context, params providers.Params) (*Track, float64, error) {
	query := strings.TrimSpace(params.Song + " " + params.Artist)
	if query == "" {
		return nil, 0.0, fmt.Errorf("empty search query")
	}

	searchURL := c.BaseURL + fmt.Sprintf(c.SearchPath, c.storefront(), url.QueryEscape(query))
	log.Infof("%s Querying TTML API: %s", logcolors.LogSearch, query)

	body, err := c.get(ctx, searchURL)
	if err != nil {
		return nil, 0.0, fmt.Errorf("search request failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, 0.0, fmt.Errorf("failed to parse search response: %w", err)
	}

	tracks := searchResp.Results.Songs.Data
	if len(tracks) == 0 {
		return nil, 0.0, fmt.Errorf("no tracks found for query %q: %w", query, providers.ErrNoLyrics)
	}

	if durationMs := params.DurationMs(); durationMs > 0 {
		tracks, err = filterByDuration(tracks, durationMs, c.DurationDelta)
		if err != nil {
			return nil, 0.0, err
		}
	}

	best := TrackScore{TotalScore: -1}
	for i := range tracks {
		score := scoreTrack(&tracks[i], params.Song, params.Artist, params.Album)
		log.Debugf("%s %s - %s | Total: %.3f (Name: %.3f, Artist: %.3f, Album: %.3f) | Duration: %dms",
			logcolors.LogTrackScore, tracks[i].Attributes.Name, tracks[i].Attributes.ArtistName,
			score.TotalScore, score.NameScore, score.ArtistScore, score.AlbumScore,
			tracks[i].Attributes.DurationInMillis)
		if score.TotalScore > best.TotalScore {
			best = score
		}
	}

	if best.TotalScore < c.MinScore {
		log.Warnf("%s Score %.3f below threshold %.3f for: %s - %s", logcolors.LogBestMatch,
			best.TotalScore, c.MinScore, best.Track.Attributes.Name, best.Track.Attributes.ArtistName)
		return nil, 0.0, fmt.Errorf("best match score %.3f below threshold %.3f: %w", best.TotalScore, c.MinScore, providers.ErrNoLyrics)
	}

	log.Infof("%s %s - %s (Score: %.3f)", logcolors.LogBestMatch,
		best.Track.Attributes.Name, best.Track.Attributes.ArtistName, best.TotalScore)
	return best.Track, best.TotalScore, nil
}

// FetchTTML downloads the timed-text document for a catalog track.
func (c *Client) FetchTTML(ctx context.Context, trackID string) (string, error) {
	lyricsURL := c.BaseURL + fmt.Sprintf(c.LyricsPath, c.storefront(), trackID)

	log.Infof("%s Fetching TTML for track: %s", logcolors.LogLyrics, trackID)
	body, err := c.get(ctx, lyricsURL)
	if err != nil {
		return "", fmt.Errorf("lyrics request failed: %w", err)
	}

	var lyricsResp LyricsResponse
	if err := json.Unmarshal(body, &lyricsResp); err != nil {
		return "", fmt.Errorf("failed to parse lyrics response: %w", err)
	}
	if len(lyricsResp.Data) == 0 {
		return "", fmt.Errorf("no lyrics data for track %s: %w", trackID, providers.ErrNoLyrics)
	}

	ttml := lyricsResp.Data[0].Attributes.TTML
	if ttml == "" {
		ttml = lyricsResp.Data[0].Attributes.TTMLLocalizations
		log.Debugf("%s Using TTMLLocalizations instead, length: %d", logcolors.LogLyrics, len(ttml))
	}
	if ttml == "" {
		return "", fmt.Errorf("TTML content is empty: %w", providers.ErrNoLyrics)
	}

	log.Debugf("%s Fetched TTML content, length: %d bytes", logcolors.LogLyrics, len(ttml))
	return ttml, nil
}
