package kugou

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"lyrics-sync-go/logcolors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// API endpoints
	lyricsSearchURL   = "https://krcs.kugou.com/search"
	lyricsDownloadURL = "https://krcs.kugou.com/download"
	songSearchURL     = "http://msearchcdn.kugou.com/api/v3/search/song"

	// Request defaults
	defaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// Kugou answers three requests per lookup; pace them so a burst of
	// lookups does not get the server IP throttled.
	requestInterval = 200 * time.Millisecond
	requestBurst    = 3
)

// Client wraps the three Kugou endpoints a lookup needs.
type Client struct {
	LyricsSearchURL   string
	LyricsDownloadURL string
	SongSearchURL     string
	HTTPClient        *http.Client
	limiter           *rate.Limiter
}

// NewClient returns a client for the public Kugou endpoints.
func NewClient() *Client {
	return &Client{
		LyricsSearchURL:   lyricsSearchURL,
		LyricsDownloadURL: lyricsDownloadURL,
		SongSearchURL:     songSearchURL,
		HTTPClient:        &http.Client{Timeout: defaultTimeout},
		limiter:           rate.NewLimiter(rate.Every(requestInterval), requestBurst),
	}
}

// getJSON performs a paced GET and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, requestURL string, v any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func keyword(song, artist string) string {
	if artist != "" {
		return song + " " + artist
	}
	return song
}

// SearchLyrics searches for lyrics candidates from Kugou.
// The hash parameter is required for the API to return candidates.
func (c *Client) SearchLyrics(ctx context.Context, song, artist string, durationMs int64, hash string) ([]LyricsCandidate, error) {
	params := url.Values{}
	params.Set("ver", "1")
	params.Set("man", "yes")
	params.Set("client", "mobi")
	params.Set("keyword", keyword(song, artist))
	if durationMs > 0 {
		params.Set("duration", strconv.FormatInt(durationMs, 10))
	}
	if hash != "" {
		params.Set("hash", hash)
	}

	log.Debugf("%s Searching lyrics: %s", logcolors.LogSearch, keyword(song, artist))

	var searchResp SearchResponse
	if err := c.getJSON(ctx, c.LyricsSearchURL+"?"+params.Encode(), &searchResp); err != nil {
		return nil, err
	}
	if searchResp.Status != 200 {
		return nil, fmt.Errorf("API error: %s (code: %d)", searchResp.ErrMsg, searchResp.ErrCode)
	}
	return searchResp.Candidates, nil
}

// DownloadLyrics downloads lyrics content by ID and access key
func (c *Client) DownloadLyrics(ctx context.Context, id, accessKey string) (string, error) {
	params := url.Values{}
	params.Set("ver", "1")
	params.Set("client", "pc")
	params.Set("id", id)
	params.Set("accesskey", accessKey)
	params.Set("fmt", "lrc")

	log.Debugf("%s Downloading lyrics ID: %s", logcolors.LogLyrics, id)

	var downloadResp DownloadResponse
	if err := c.getJSON(ctx, c.LyricsDownloadURL+"?"+params.Encode(), &downloadResp); err != nil {
		return "", err
	}
	if downloadResp.Status != 200 {
		return "", fmt.Errorf("API error: %s (code: %d)", downloadResp.Info, downloadResp.ErrorCode)
	}
	if downloadResp.Content == "" {
		return "", fmt.Errorf("lyrics content is empty")
	}

	lrcContent, err := DecodeBase64Content(downloadResp.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decode lyrics content: %w", err)
	}
	return lrcContent, nil
}

// SearchSongs searches for songs on Kugou to get the hash lyrics search needs
func (c *Client) SearchSongs(ctx context.Context, song, artist string, pageSize int) ([]SongInfo, error) {
	if pageSize <= 0 {
		pageSize = 10
	}

	params := url.Values{}
	params.Set("keyword", keyword(song, artist))
	params.Set("pagesize", strconv.Itoa(pageSize))
	params.Set("page", "1")
	params.Set("plat", "0")
	params.Set("version", "9108")

	var searchResp SongSearchResponse
	if err := c.getJSON(ctx, c.SongSearchURL+"?"+params.Encode(), &searchResp); err != nil {
		return nil, err
	}
	if searchResp.Status != 1 {
		return nil, fmt.Errorf("API error: status %d, errcode %d", searchResp.Status, searchResp.ErrCode)
	}
	return searchResp.Data.Info, nil
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}

// durationBonus rewards candidates close to the requested duration.
func durationBonus(candidateMs, durationMs int64) int {
	if durationMs <= 0 || candidateMs <= 0 {
		return 0
	}
	diff := abs(candidateMs - durationMs)
	switch {
	case diff < 3000:
		return 20
	case diff < 5000:
		return 10
	case diff < 10000:
		return 5
	default:
		return 0
	}
}

func normalizeScore(score, maxPossible int) float64 {
	normalized := float64(score) / float64(maxPossible)
	return max(0.0, min(1.0, normalized))
}

// SelectBestCandidate selects the best lyrics candidate based on scoring.
// Returns the best candidate and the calculated match score (0.0 to 1.0)
func SelectBestCandidate(candidates []LyricsCandidate, song, artist string, durationMs int64) (*LyricsCandidate, float64) {
	if len(candidates) == 0 {
		return nil, 0
	}

	var best *LyricsCandidate
	bestScore := -1
	// 60 (API base) + 20 (synced) + 20 (exact song) + 20 (exact artist) + 20 (duration) + 5 (official)
	const maxPossibleScore = 145

	songLower := strings.ToLower(song)
	artistLower := strings.ToLower(artist)

	for i := range candidates {
		c := &candidates[i]
		score := c.Score

		if c.KRCType == 1 {
			score += 20
		}

		candidateSong := strings.ToLower(c.Song)
		if candidateSong == songLower {
			score += 20
		} else if strings.Contains(candidateSong, songLower) || strings.Contains(songLower, candidateSong) {
			score += 10
		}

		if artistLower != "" {
			candidateSinger := strings.ToLower(c.Singer)
			if candidateSinger == artistLower {
				score += 20
			} else if strings.Contains(candidateSinger, artistLower) {
				score += 10
			}
		}

		score += durationBonus(c.Duration, durationMs)

		if strings.Contains(c.ProductFrom, "官方") {
			score += 5
		}

		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	return best, normalizeScore(bestScore, maxPossibleScore)
}

// filterSongsByDuration filters songs to those within deltaMs of the target duration
func filterSongsByDuration(songs []SongInfo, durationMs, deltaMs int64) []SongInfo {
	var filtered []SongInfo
	for _, s := range songs {
		if abs(s.Duration*1000-durationMs) <= deltaMs {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// SelectBestSong selects the best song from search results based on matching criteria.
// Returns the best song and a normalized score (0.0 to 1.0)
func SelectBestSong(songs []SongInfo, song, artist string, durationMs int64) (*SongInfo, float64) {
	if len(songs) == 0 {
		return nil, 0
	}

	var best *SongInfo
	bestScore := -1
	// 30 (exact song) + 25 (exact artist) + 20 (duration) + 3 (quality)
	const maxPossibleScore = 78

	songLower := strings.ToLower(song)
	artistLower := strings.ToLower(artist)

	for i := range songs {
		s := &songs[i]
		score := 0

		songName := strings.ToLower(s.SongName)
		if songName == songLower {
			score += 30
		} else if strings.Contains(songName, songLower) || strings.Contains(songLower, songName) {
			score += 15
		}

		if artistLower != "" {
			singer := strings.ToLower(s.SingerName)
			if singer == artistLower {
				score += 25
			} else if strings.Contains(singer, artistLower) || strings.Contains(artistLower, singer) {
				score += 10
			}
		}

		// SongInfo.Duration is in seconds
		score += durationBonus(s.Duration*1000, durationMs)

		if s.SQHash != "" {
			score += 2
		}
		if s.Hash320 != "" {
			score += 1
		}

		if score > bestScore {
			bestScore = score
			best = s
		}
	}

	return best, normalizeScore(bestScore, maxPossibleScore)
}
