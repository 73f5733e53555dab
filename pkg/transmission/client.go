// Package transmission is a minimal Transmission RPC client covering the
// calls the bot needs: torrent-add, torrent-get, torrent-remove and
// torrent-stop. It transparently handles the CSRF handshake: a 409 answer
// carries the X-Transmission-Session-Id header and the request is retried
// once with it.
package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const sessionHeader = "X-Transmission-Session-Id"

// Torrent status codes as reported by the RPC.
const (
	StatusStopped = iota
	StatusQueuedVerify
	StatusVerifying
	StatusQueuedDownload
	StatusDownloading
	StatusQueuedSeed
	StatusSeeding
)

type Config struct {
	URL         string
	Credentials string // "user:password", optional
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
}

func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:9091"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Torrent is the read-only view of one download.
type Torrent struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Status         int     `json:"status"`
	PercentDone    float64 `json:"percentDone"`
	DownloadDir    string  `json:"downloadDir"`
	TotalSize      int64   `json:"totalSize"`
	DownloadedEver int64   `json:"downloadedEver"`
	UploadedEver   int64   `json:"uploadedEver"`
	RateDownload   int64   `json:"rateDownload"`
	RateUpload     int64   `json:"rateUpload"`
}

// AddRequest describes a torrent-add call. Exactly one of MagnetURI or
// MetainfoBase64 must be set.
type AddRequest struct {
	DownloadDir    string
	MagnetURI      string
	MetainfoBase64 string
}

func (c *Client) Add(ctx context.Context, req AddRequest) error {
	args := map[string]any{"download-dir": req.DownloadDir}
	switch {
	case req.MagnetURI != "":
		args["filename"] = req.MagnetURI
	case req.MetainfoBase64 != "":
		args["metainfo"] = req.MetainfoBase64
	default:
		return errors.New("add request has no magnet URI or metainfo")
	}

	_, err := c.rpc(ctx, "torrent-add", args)
	return err
}

var listFields = []string{
	"id", "name", "status", "percentDone", "downloadDir",
	"totalSize", "downloadedEver", "uploadedEver",
	"rateDownload", "rateUpload",
}

func (c *Client) List(ctx context.Context) ([]Torrent, error) {
	raw, err := c.rpc(ctx, "torrent-get", map[string]any{"fields": listFields})
	if err != nil {
		return nil, err
	}

	var args struct {
		Torrents []Torrent `json:"torrents"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("parsing torrent list: %w", err)
	}
	return args.Torrents, nil
}

// Remove removes torrents from Transmission, keeping downloaded files on
// disk.
func (c *Client) Remove(ctx context.Context, ids []int64) error {
	_, err := c.rpc(ctx, "torrent-remove", map[string]any{
		"ids":               ids,
		"delete-local-data": false,
	})
	return err
}

// StopAll stops every torrent, ending all seeding.
func (c *Client) StopAll(ctx context.Context) error {
	torrents, err := c.List(ctx)
	if err != nil {
		return err
	}
	if len(torrents) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(torrents))
	for _, t := range torrents {
		ids = append(ids, t.ID)
	}

	_, err = c.rpc(ctx, "torrent-stop", map[string]any{"ids": ids})
	return err
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

// rpc posts one RPC call, retrying once after a 409 with the session ID
// the server handed back.
func (c *Client) rpc(ctx context.Context, method string, args any) (json.RawMessage, error) {
	resp, err := c.post(ctx, method, args)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusConflict {
		id := resp.Header.Get(sessionHeader)
		resp.Body.Close()
		if id == "" {
			return nil, errors.New("transmission 409 without session id header")
		}
		c.setSessionID(id)

		resp, err = c.post(ctx, method, args)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transmission returned %s", resp.Status)
	}

	var body rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding transmission response: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("transmission error: %s", body.Result)
	}
	return body.Arguments, nil
}

func (c *Client) post(ctx context.Context, method string, args any) (*http.Response, error) {
	payload, err := json.Marshal(map[string]any{
		"method":    method,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.cfg.URL+"/transmission/rpc", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.cfg.Credentials != "" {
		user, pass, _ := strings.Cut(c.cfg.Credentials, ":")
		req.SetBasicAuth(user, pass)
	}
	if id := c.getSessionID(); id != "" {
		req.Header.Set(sessionHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transmission request: %w", err)
	}
	return resp, nil
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Client) getSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}
