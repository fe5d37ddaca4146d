// Package translate fills line translations and romanizations from an
// external translation service.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNoResult is returned when the service answered without usable text.
var ErrNoResult = errors.New("no translation result")

// Translator is the translation and romanization collaborator.
type Translator interface {
	// Translate renders text in targetLang.
	Translate(ctx context.Context, text, targetLang string) (string, error)
	// Romanize transliterates text written in sourceLang ("" or "auto" to
	// detect) into Latin script.
	Romanize(ctx context.Context, text, sourceLang string) (string, error)
}

// Client talks to a translate_a/single style endpoint.
type Client struct {
	URL        string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		URL:        endpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// NewClientFromConfig builds a client from the global configuration.
func NewClientFromConfig() *Client {
	return NewClient(config.Get().Configuration.TranslateURL)
}

// Translate implements Translator.
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", "auto")
	query.Set("tl", targetLang)
	query.Set("dt", "t")
	query.Set("q", text)

	data, err := c.get(ctx, query)
	if err != nil {
		return "", err
	}

	sentences, _ := index(data, 0).([]any)
	var b strings.Builder
	for _, s := range sentences {
		if part, ok := index(s, 0).(string); ok {
			b.WriteString(part)
		}
	}
	if b.Len() == 0 {
		return "", ErrNoResult
	}
	return b.String(), nil
}

// Romanize implements Translator.
func (c *Client) Romanize(ctx context.Context, text, sourceLang string) (string, error) {
	if sourceLang == "" {
		sourceLang = "auto"
	}
	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", sourceLang)
	query.Set("tl", "en")
	query.Add("dt", "t")
	query.Add("dt", "rm")
	query.Set("q", text)

	data, err := c.get(ctx, query)
	if err != nil {
		return "", err
	}

	// The source transliteration is the fourth field of the last sentence
	// entry.
	sentences, _ := index(data, 0).([]any)
	if len(sentences) == 0 {
		return "", ErrNoResult
	}
	roman, _ := index(sentences[len(sentences)-1], 3).(string)
	if roman == "" {
		return "", ErrNoResult
	}
	return roman, nil
}

func (c *Client) get(ctx context.Context, query url.Values) (any, error) {
	if c.URL == "" {
		return nil, errors.New("translate endpoint not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqURL := c.URL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate request: %w", err)
	}

	log.Debugf("%s GET %s (tl=%s, %d chars)", logcolors.LogTranslate, c.URL, query.Get("tl"), len(query.Get("q")))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("translate returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode translate response: %w", err)
	}
	return data, nil
}

// index returns v[i] for a JSON array, or nil.
func index(v any, i int) any {
	arr, ok := v.([]any)
	if !ok || i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}
