// Package jackett wraps the Jackett aggregate search API
// (/api/v2.0/indexers/all/results) and resolves a chosen result into
// something Transmission can ingest: a magnet URI or base64 metainfo.
package jackett

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

var (
	// ErrNoIndexers means Jackett answered but has no indexers configured.
	ErrNoIndexers = errors.New("jackett has no indexers configured")
	// ErrNoResults means the query matched nothing.
	ErrNoResults = errors.New("no results for query")
	// ErrNoLocation means the result carries neither a magnet nor a link.
	ErrNoLocation = errors.New("torrent has no magnet URI or download link")
)

const (
	defaultURL        = "http://localhost:9117"
	defaultMaxResults = 20
	maxRedirects      = 5
	fetchUserAgent    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

type Config struct {
	URL        string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	// fetchClient does not follow redirects so torrent links that bounce
	// to magnet: URIs can be intercepted.
	fetchClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		fetchClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Result is one search hit. MagnetURI may be empty when only a .torrent
// download link is available.
type Result struct {
	Title      string
	MagnetURI  string
	TorrentURL string
	SizeBytes  int64
	Seeders    int64
	Categories []int
}

type wireResult struct {
	Title     string `json:"Title"`
	MagnetURI string `json:"MagnetUri"`
	Link      string `json:"Link"`
	Size      int64  `json:"Size"`
	Seeders   int64  `json:"Seeders"`
	Category  []int  `json:"Category"`
}

type wireResponse struct {
	Indexers []struct {
		Name string `json:"Name"`
	} `json:"Indexers"`
	Results []wireResult `json:"Results"`
}

// Search runs the aggregate query and returns up to MaxResults hits,
// best-seeded first.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	q.Set("Query", query)
	endpoint := c.cfg.URL + "/api/v2.0/indexers/all/results?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jackett request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jackett returned %s", resp.Status)
	}

	var body wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding jackett response: %w", err)
	}

	if len(body.Indexers) == 0 && len(body.Results) == 0 {
		return nil, ErrNoIndexers
	}
	if len(body.Results) == 0 {
		return nil, ErrNoResults
	}

	results := make([]Result, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, Result{
			Title:      r.Title,
			MagnetURI:  r.MagnetURI,
			TorrentURL: r.Link,
			SizeBytes:  r.Size,
			Seeders:    r.Seeders,
			Categories: r.Category,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Seeders > results[j].Seeders
	})
	if len(results) > c.cfg.MaxResults {
		results = results[:c.cfg.MaxResults]
	}

	logger.DebugCF("jackett", "search done", map[string]any{
		"query":   query,
		"results": len(results),
	})
	return results, nil
}

// Location is a torrent reference in a form torrent-add accepts: either a
// magnet URI or a base64-encoded .torrent file.
type Location struct {
	Content  string
	IsMagnet bool
}

// ResolveLocation turns a Result into a Location. Magnet URIs pass
// through; download links are fetched, chasing up to maxRedirects
// redirects. A redirect to a magnet: URI short-circuits into a magnet
// location; a 200 body becomes base64 metainfo.
func (c *Client) ResolveLocation(ctx context.Context, r Result) (Location, error) {
	if r.MagnetURI != "" {
		return Location{Content: r.MagnetURI, IsMagnet: true}, nil
	}
	if r.TorrentURL == "" {
		return Location{}, ErrNoLocation
	}
	return c.fetchTorrent(ctx, r.TorrentURL)
}

func (c *Client) fetchTorrent(ctx context.Context, torrentURL string) (Location, error) {
	current := torrentURL

	for redirects := 0; ; redirects++ {
		if redirects > maxRedirects {
			return Location{}, fmt.Errorf("too many redirects fetching torrent: %s", current)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return Location{}, err
		}
		req.Header.Set("User-Agent", fetchUserAgent)

		resp, err := c.fetchClient.Do(req)
		if err != nil {
			return Location{}, fmt.Errorf("fetching torrent: %w", err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return Location{}, errors.New("redirect response without Location header")
			}
			next := resolveRedirect(current, loc)
			if strings.HasPrefix(next, "magnet:") {
				return Location{Content: next, IsMagnet: true}, nil
			}
			current = next
			continue
		}

		content, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return Location{}, fmt.Errorf("reading torrent body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return Location{}, fmt.Errorf("torrent download returned %s", resp.Status)
		}
		if len(content) == 0 {
			return Location{}, fmt.Errorf("torrent download returned empty content: %s", current)
		}

		return Location{Content: base64.StdEncoding.EncodeToString(content)}, nil
	}
}

func resolveRedirect(current, loc string) string {
	base, err := url.Parse(current)
	if err != nil {
		return loc
	}
	next, err := base.Parse(loc)
	if err != nil {
		return loc
	}
	return next.String()
}
