package legacy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/providers"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Client runs the client-credentials search and the lyrics lookup.
type Client struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	SearchURL    string
	LyricsURL    string
	HTTPClient   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewClientFromConfig builds a client from the global configuration.
func NewClientFromConfig() *Client {
	conf := config.Get()
	return &Client{
		ClientID:     conf.Configuration.LegacyClientID,
		ClientSecret: conf.Configuration.LegacyClientSecret,
		TokenURL:     conf.Configuration.LegacyTokenURL,
		SearchURL:    conf.Configuration.LegacySearchURL,
		LyricsURL:    conf.Configuration.LegacyLyricsURL,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether every endpoint and credential is set.
func (c *Client) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.TokenURL != "" && c.SearchURL != "" && c.LyricsURL != ""
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// accessToken returns a cached OAuth token, requesting a new one when the
// cached token is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.clock().Before(c.tokenExpiry) {
		log.Debugf("%s [Legacy] Using cached OAuth token", logcolors.LogCache)
		return c.token, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("error creating token request: %w", err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.ClientID + ":" + c.ClientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResp OAuthTokenResponse
	if err := c.do(req, &tokenResp); err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response carried no access token")
	}

	// Refresh a little early so a request never races the expiry.
	lifetime := time.Duration(tokenResp.ExpiresIn)*time.Second - 30*time.Second
	c.token = tokenResp.AccessToken
	c.tokenExpiry = c.clock().Add(max(lifetime, 0))

	log.Debugf("%s [Legacy] Cached new OAuth token", logcolors.LogCache)
	return c.token, nil
}

// do sends req and decodes a JSON 200 response into v. A 404 maps to
// providers.ErrNoLyrics.
func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return providers.ErrNoLyrics
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}

func (c *Client) authorizedGet(ctx context.Context, requestURL string, v any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, v)
}

// SearchTracks returns the catalog tracks matching query.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]TrackItem, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", "10")

	var trackResp TrackResponse
	if err := c.authorizedGet(ctx, c.SearchURL+"?"+params.Encode(), &trackResp); err != nil {
		return nil, err
	}
	return trackResp.Tracks.Items, nil
}

// FetchLyrics fetches the line-synced lyrics for a track.
func (c *Client) FetchLyrics(ctx context.Context, trackID string) (*LyricsData, error) {
	requestURL := strings.TrimRight(c.LyricsURL, "/") + "/" + url.PathEscape(trackID) + "?format=json"

	var lyricsResp LyricsResponse
	if err := c.authorizedGet(ctx, requestURL, &lyricsResp); err != nil {
		return nil, err
	}
	return &lyricsResp.Lyrics, nil
}

// pickTrack returns the first track within deltaMs of durationMs, or the
// first track when no duration is known.
func pickTrack(items []TrackItem, durationMs, deltaMs int64) *TrackItem {
	for i := range items {
		if durationMs <= 0 {
			return &items[i]
		}
		diff := items[i].DurationMs - durationMs
		if diff < 0 {
			diff = -diff
		}
		if diff <= deltaMs {
			return &items[i]
		}
	}
	return nil
}
