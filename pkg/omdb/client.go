// Package omdb looks up canonical titles on the OMDb API
// (https://www.omdbapi.com/). The bot feeds the canonical title back into
// the indexer search, so an IMDb link becomes a usable query.
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("omdb api key not configured")

var imdbIDPattern = regexp.MustCompile(`tt\d{6,}`)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.omdbapi.com/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type wireResponse struct {
	Title    string `json:"Title"`
	Year     string `json:"Year"`
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// Lookup resolves an IMDb URL, a bare IMDb ID (tt1234567), or a free-form
// title into "Title Year" suitable as a search query.
func (c *Client) Lookup(ctx context.Context, query string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	if id := imdbIDPattern.FindString(query); id != "" {
		q.Set("i", id)
	} else {
		q.Set("t", query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("omdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("omdb returned %s", resp.Status)
	}

	var body wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding omdb response: %w", err)
	}
	if body.Response != "True" {
		if body.Error != "" {
			return "", fmt.Errorf("omdb: %s", body.Error)
		}
		return "", errors.New("omdb: lookup failed")
	}

	title := body.Title
	if body.Year != "" {
		// Year disambiguates remakes in the indexer search.
		title = title + " " + body.Year
	}
	return title, nil
}
