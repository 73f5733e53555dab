// Package executor carries out resolved actions against the external
// adapters and formats the outcomes as chat replies.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/jackett"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
	"github.com/tinyland-inc/torrentclaw/pkg/media"
	"github.com/tinyland-inc/torrentclaw/pkg/selection"
	"github.com/tinyland-inc/torrentclaw/pkg/storage"
	"github.com/tinyland-inc/torrentclaw/pkg/transmission"
)

const actionTimeout = 60 * time.Second

// Executor maps actions onto the Jackett, Transmission and disk
// adapters. Each action gets its own deadline so one stuck backend
// cannot wedge a conversation worker forever.
type Executor struct {
	jackett      *jackett.Client
	transmission *transmission.Client
	paths        config.TransmissionConfig
}

func New(j *jackett.Client, t *transmission.Client, paths config.TransmissionConfig) *Executor {
	return &Executor{jackett: j, transmission: t, paths: paths}
}

// Execute runs one action and returns the reply text for the user.
func (e *Executor) Execute(ctx context.Context, action selection.Action) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	switch action.Kind {
	case selection.AddTorrent:
		return e.addTorrent(ctx, action)
	case selection.DeleteTorrent:
		return e.deleteTorrent(ctx, action)
	case selection.DeleteFile:
		return e.deleteFile(action)
	case selection.StopSeed:
		if err := e.transmission.StopAll(ctx); err != nil {
			return "", err
		}
		return "⏹️ Stopped seeding for all downloads", nil
	case selection.ShowStatus:
		return e.showStatus(ctx)
	case selection.ShowStorage:
		return e.showStorage()
	default:
		return "", fmt.Errorf("unknown action kind %d", action.Kind)
	}
}

func (e *Executor) addTorrent(ctx context.Context, action selection.Action) (string, error) {
	dir, err := e.paths.PathFor(action.Category)
	if err != nil {
		return "", err
	}

	loc, err := e.jackett.ResolveLocation(ctx, jackett.Result{
		MagnetURI:  action.MagnetURI,
		TorrentURL: action.TorrentURL,
	})
	if err != nil {
		return "", err
	}

	req := transmission.AddRequest{DownloadDir: dir}
	if loc.IsMagnet {
		req.MagnetURI = loc.Content
	} else {
		req.MetainfoBase64 = loc.Content
	}
	if err := e.transmission.Add(ctx, req); err != nil {
		return "", err
	}

	logger.InfoCF("executor", "torrent added", map[string]any{
		"category": action.Category.String(),
		"dir":      dir,
	})
	return "🧲 Added torrent", nil
}

func (e *Executor) deleteTorrent(ctx context.Context, action selection.Action) (string, error) {
	if err := e.transmission.Remove(ctx, []int64{action.TorrentID}); err != nil {
		return "", err
	}
	return "🗑️ Torrent deleted", nil
}

func (e *Executor) deleteFile(action selection.Action) (string, error) {
	root, rootErr := e.paths.PathFor(action.Category)
	if rootErr != nil {
		// Unknown category: the path must sit under one of the two roots.
		if err := storage.Delete(action.Path, e.paths.TVPath); err == nil {
			return deletedReply(action.Path), nil
		}
		if err := storage.Delete(action.Path, e.paths.MoviePath); err != nil {
			return "", err
		}
		return deletedReply(action.Path), nil
	}

	if err := storage.Delete(action.Path, root); err != nil {
		return "", err
	}
	return deletedReply(action.Path), nil
}

func deletedReply(path string) string {
	parts := strings.Split(path, "/")
	return "🗑️ Deleted: " + parts[len(parts)-1]
}

var statusEmoji = map[int]string{
	transmission.StatusStopped:        "⏸️",
	transmission.StatusQueuedVerify:   "⏳",
	transmission.StatusVerifying:      "🔍",
	transmission.StatusQueuedDownload: "⏳",
	transmission.StatusDownloading:    "⬇️",
	transmission.StatusQueuedSeed:     "⏳",
	transmission.StatusSeeding:        "⬆️",
}

func (e *Executor) showStatus(ctx context.Context) (string, error) {
	torrents, err := e.transmission.List(ctx)
	if err != nil {
		return "", err
	}
	if len(torrents) == 0 {
		return "📊 No active downloads", nil
	}

	var b strings.Builder
	b.WriteString("📊 Active Downloads:\n\n")
	for _, t := range torrents {
		emoji, ok := statusEmoji[t.Status]
		if !ok {
			emoji = "❓"
		}
		fmt.Fprintf(&b, "%s %s (%d%%)\n  Size: %s, Downloaded: %s, Uploaded: %s\n",
			emoji, t.Name, int(t.PercentDone*100),
			humanize.Bytes(uint64(t.TotalSize)),
			humanize.Bytes(uint64(t.DownloadedEver)),
			humanize.Bytes(uint64(t.UploadedEver)))
	}
	return b.String(), nil
}

func (e *Executor) showStorage() (string, error) {
	usages, err := storage.DiskUsage([]string{e.paths.TVPath, e.paths.MoviePath})
	if err != nil {
		return "", err
	}
	return FormatStorage(usages), nil
}

// FormatStorage renders mount usage for chat. Shared with the scheduled
// storage digest.
func FormatStorage(usages []storage.Usage) string {
	if len(usages) == 0 {
		return "💾 No storage paths configured"
	}

	var b strings.Builder
	b.WriteString("💾 Storage:\n\n")
	for _, u := range usages {
		percent := 0
		if u.Total > 0 {
			percent = int(u.Used * 100 / u.Total)
		}
		fmt.Fprintf(&b, "%s\n  %s free of %s (%d%% used)\n",
			u.Mount, humanize.Bytes(u.Available), humanize.Bytes(u.Total), percent)
	}
	return b.String()
}

// ListTorrents fetches the current downloads for list presentation.
func (e *Executor) ListTorrents(ctx context.Context) ([]transmission.Torrent, error) {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	return e.transmission.List(ctx)
}

// TVPath and MoviePath expose the library roots for components that list
// or restructure files.
func (e *Executor) TVPath() string    { return e.paths.TVPath }
func (e *Executor) MoviePath() string { return e.paths.MoviePath }

// LibraryRoot maps a category to its library root.
func (e *Executor) LibraryRoot(cat media.Category) (string, error) {
	return e.paths.PathFor(cat)
}
