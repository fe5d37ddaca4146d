package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/providers"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const userAgent = "lyrics-sync-go (https://github.com/lyrics-sync-go)"

// Record is the /api/get response body.
type Record struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// Client queries an LRCLIB instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for baseURL, paced to a few requests a second.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 4),
	}
}

// NewClientFromConfig builds a client from the global configuration.
func NewClientFromConfig() *Client {
	return NewClient(config.Get().Configuration.LRCLibURL)
}

// Get looks up a single record. A 404 wraps providers.ErrNoLyrics.
func (c *Client) Get(ctx context.Context, params providers.Params) (*Record, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	query.Set("track_name", params.Song)
	query.Set("artist_name", params.Artist)
	if params.Album != "" {
		query.Set("album_name", params.Album)
	}
	if params.DurationSeconds > 0 {
		query.Set("duration", strconv.FormatInt(params.DurationMs()/1000, 10))
	}

	reqURL := fmt.Sprintf("%s/api/get?%s", c.BaseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lrclib request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	log.Debugf("%s [LRCLIB] GET %s", logcolors.LogHTTP, reqURL)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lrclib request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("lrclib has no record: %w", providers.ErrNoLyrics)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lrclib returned status %d", resp.StatusCode)
	}

	var record Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode lrclib response: %w", err)
	}
	return &record, nil
}
