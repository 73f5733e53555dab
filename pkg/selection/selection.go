// Package selection implements the two-phase list protocol the bot runs
// every numbered list through: present a list and remember its context,
// then resolve a later reply against that context into a concrete action.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tinyland-inc/torrentclaw/pkg/jackett"
	"github.com/tinyland-inc/torrentclaw/pkg/media"
	"github.com/tinyland-inc/torrentclaw/pkg/session"
	"github.com/tinyland-inc/torrentclaw/pkg/storage"
	"github.com/tinyland-inc/torrentclaw/pkg/transmission"
)

var (
	// ErrSessionNotFound means there is no live context behind the replied-to
	// message; it was never a list, already resolved, or its TTL passed.
	ErrSessionNotFound = errors.New("selection expired or not found")
	// ErrAmbiguousCategory means the chosen candidate has no inferred
	// category and the reply did not supply tv or movie.
	ErrAmbiguousCategory = errors.New("ambiguous category, specify tv or movie")
)

// InvalidSelectionError reports an out-of-range index together with the
// valid range so the reply can name it.
type InvalidSelectionError struct {
	Max int
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid selection, choose a number between 1 and %d", e.Max)
}

// ActionKind is what a resolved selection asks the executor to do.
type ActionKind int

const (
	AddTorrent ActionKind = iota
	DeleteTorrent
	DeleteFile
	StopSeed
	ShowStatus
	ShowStorage
)

// Action is a resolved selection, consumed immediately by the executor.
type Action struct {
	Kind     ActionKind
	Category media.Category

	MagnetURI  string
	TorrentURL string
	TorrentID  int64
	Path       string
}

// Engine pairs list rendering with the session store that makes replies
// resolvable. Presentation is deterministic; resolution is single-use.
type Engine struct {
	store *session.Store
}

func NewEngine(store *session.Store) *Engine {
	return &Engine{store: store}
}

// Presented is a rendered list plus the candidates backing it, in final
// display order. The caller sends the text, learns the message ID, and
// passes it to Remember.
type Presented struct {
	Text       string
	Kind       session.Kind
	Candidates []session.Candidate
}

// PresentSearch renders search hits best first: descending seeders, ties
// broken by descending size, original order beyond that. Candidates with
// a mixed or unknown category band stay Unknown and will need a tv/movie
// override at resolution.
func PresentSearch(results []jackett.Result) Presented {
	sorted := append([]jackett.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Seeders != sorted[j].Seeders {
			return sorted[i].Seeders > sorted[j].Seeders
		}
		return sorted[i].SizeBytes > sorted[j].SizeBytes
	})

	var b strings.Builder
	b.WriteString("Reply with the number to download:\n\n")

	candidates := make([]session.Candidate, 0, len(sorted))
	for i, r := range sorted {
		cat := media.FromTorznab(r.Categories)
		label := ""
		switch cat {
		case media.TV:
			label = " [TV]"
		case media.Movie:
			label = " [Movie]"
		}

		fmt.Fprintf(&b, "%d. %s%s\n   %s, %d seeders\n",
			i+1, r.Title, label, humanize.Bytes(uint64(r.SizeBytes)), r.Seeders)

		candidates = append(candidates, session.Candidate{
			Index:      i + 1,
			Title:      r.Title,
			Category:   cat,
			MagnetURI:  r.MagnetURI,
			TorrentURL: r.TorrentURL,
			SizeBytes:  r.SizeBytes,
			Seeders:    r.Seeders,
		})
	}

	return Presented{Text: b.String(), Kind: session.SearchSelection, Candidates: candidates}
}

// PresentTorrents renders the deletable-torrent list in adapter order,
// optionally filtered to one category by download directory.
func PresentTorrents(torrents []transmission.Torrent, filter media.Category, tvRoot, movieRoot string) Presented {
	var b strings.Builder
	var candidates []session.Candidate

	index := 0
	for _, t := range torrents {
		cat := media.FromPath(t.DownloadDir, tvRoot, movieRoot)
		if filter != media.Unknown && cat != filter {
			continue
		}

		label := "📁 Unknown"
		switch cat {
		case media.TV:
			label = "📺 TV"
		case media.Movie:
			label = "🎬 Movie"
		}

		index++
		fmt.Fprintf(&b, "%d. %s - %s (%d%%)\n", index, label, t.Name, int(t.PercentDone*100))
		candidates = append(candidates, session.Candidate{
			Index:     index,
			Title:     t.Name,
			Category:  cat,
			TorrentID: t.ID,
		})
	}

	if index == 0 {
		return Presented{Text: "No downloads found", Kind: session.DeleteTorrentSelection}
	}

	return Presented{
		Text:       "Reply with the number to delete (torrent):\n\n" + b.String(),
		Kind:       session.DeleteTorrentSelection,
		Candidates: candidates,
	}
}

// PresentFiles renders the deletable-entry list for one library root, in
// adapter order.
func PresentFiles(entries []storage.Entry, cat media.Category) Presented {
	if len(entries) == 0 {
		return Presented{Text: "No files found", Kind: session.DeleteFileSelection}
	}

	var b strings.Builder
	b.WriteString("Reply with the number to delete (file):\n\n")

	candidates := make([]session.Candidate, 0, len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Name)
		candidates = append(candidates, session.Candidate{
			Index:    i + 1,
			Title:    e.Name,
			Category: cat,
			Path:     e.Path,
		})
	}

	return Presented{Text: b.String(), Kind: session.DeleteFileSelection, Candidates: candidates}
}

// Remember stores the presented list under the anchor message so replies
// to it become resolvable. Lists with no candidates are not remembered.
func (e *Engine) Remember(channel, chatID, anchorID string, p Presented) {
	if len(p.Candidates) == 0 {
		return
	}
	e.store.Put(&session.Context{
		Channel:    channel,
		ChatID:     chatID,
		AnchorID:   anchorID,
		Kind:       p.Kind,
		Candidates: p.Candidates,
	})
}

// Resolve turns a reply into an action. Success consumes the session, so
// a second reply to the same anchor finds nothing. An out-of-range index
// or a missing category override leaves the session retained for a
// retry.
func (e *Engine) Resolve(channel, chatID, anchorID string, index int, override media.Category) (Action, error) {
	ctx, ok := e.store.Get(channel, chatID, anchorID)
	if !ok {
		return Action{}, ErrSessionNotFound
	}

	if index < 1 || index > len(ctx.Candidates) {
		return Action{}, &InvalidSelectionError{Max: len(ctx.Candidates)}
	}
	chosen := ctx.Candidates[index-1]

	category := chosen.Category
	if override != media.Unknown {
		category = override
	}

	var action Action
	switch ctx.Kind {
	case session.SearchSelection:
		if category == media.Unknown {
			return Action{}, ErrAmbiguousCategory
		}
		action = Action{
			Kind:       AddTorrent,
			Category:   category,
			MagnetURI:  chosen.MagnetURI,
			TorrentURL: chosen.TorrentURL,
		}
	case session.DeleteTorrentSelection:
		action = Action{Kind: DeleteTorrent, Category: category, TorrentID: chosen.TorrentID}
	case session.DeleteFileSelection:
		action = Action{Kind: DeleteFile, Category: category, Path: chosen.Path}
	default:
		return Action{}, fmt.Errorf("selection kind %s is not resolvable by index", ctx.Kind)
	}

	e.store.Remove(channel, chatID, anchorID)
	return action, nil
}
