// Package dispatch is the conversational core: it consumes inbound
// messages, routes them through command and reply handling, runs the
// resulting actions, and sends replies. Messages from the same chat are
// processed in arrival order; distinct chats proceed concurrently.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/executor"
	"github.com/tinyland-inc/torrentclaw/pkg/jackett"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
	"github.com/tinyland-inc/torrentclaw/pkg/media"
	"github.com/tinyland-inc/torrentclaw/pkg/omdb"
	"github.com/tinyland-inc/torrentclaw/pkg/restructure"
	"github.com/tinyland-inc/torrentclaw/pkg/router"
	"github.com/tinyland-inc/torrentclaw/pkg/selection"
	"github.com/tinyland-inc/torrentclaw/pkg/session"
	"github.com/tinyland-inc/torrentclaw/pkg/storage"
)

const helpText = `/torrent-tv (Magnet Link)
/torrent-movie (Magnet Link)
/search (Movie or TV Show e.g. The Matrix or Simpsons s01e01)
/imdb (Imdb link). Requires omdb token set https://www.omdbapi.com/
/status - Get status of active downloads
/delete-torrent - List all downloads (reply with number to delete torrent)
/delete-tv - List TV shows files (reply with number to delete file)
/delete-movie - List movie files (reply with number to delete file)
/restructure <tv|movie> - Scan and reorganize media files
/stop-seed - Stop seeding for all downloads
/storage - Get available storage information
/chat-id - Show this chat's ID

Reply to a result list with:
Position of the torrent
If the indexer doesn't provide a category, force one with:
tv (position)
movie (position)`

// workerQueueSize bounds how many messages one chat can have waiting.
const workerQueueSize = 16

// Sender delivers one outbound message and returns its platform ID.
// Satisfied by channels.Manager.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) (string, error)
}

type Dispatcher struct {
	bus     *bus.MessageBus
	sender  Sender
	store   *session.Store
	engine  *selection.Engine
	exec    *executor.Executor
	search  *jackett.Client
	meta    *omdb.Client
	planner *restructure.Planner
	paths   config.TransmissionConfig

	mu      sync.Mutex
	workers map[string]chan bus.InboundMessage
	wg      sync.WaitGroup
}

func NewDispatcher(
	b *bus.MessageBus,
	sender Sender,
	store *session.Store,
	exec *executor.Executor,
	search *jackett.Client,
	meta *omdb.Client,
	paths config.TransmissionConfig,
) *Dispatcher {
	return &Dispatcher{
		bus:     b,
		sender:  sender,
		store:   store,
		engine:  selection.NewEngine(store),
		exec:    exec,
		search:  search,
		meta:    meta,
		planner: restructure.NewPlanner(),
		paths:   paths,
		workers: make(map[string]chan bus.InboundMessage),
	}
}

// Run consumes the inbound bus until ctx is canceled, then waits for the
// per-conversation workers to drain.
func (d *Dispatcher) Run(ctx context.Context) {
	logger.InfoC("dispatch", "dispatcher started")
	for {
		msg, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		d.enqueue(ctx, msg)
	}

	d.mu.Lock()
	for _, queue := range d.workers {
		close(queue)
	}
	d.workers = make(map[string]chan bus.InboundMessage)
	d.mu.Unlock()

	d.wg.Wait()
	logger.InfoC("dispatch", "dispatcher stopped")
}

// enqueue hands the message to its conversation's worker, starting one
// on first contact. A full queue drops the message; ordering is kept by
// never blocking the consume loop on a single slow chat.
func (d *Dispatcher) enqueue(ctx context.Context, msg bus.InboundMessage) {
	key := msg.ConversationKey()

	d.mu.Lock()
	queue, ok := d.workers[key]
	if !ok {
		queue = make(chan bus.InboundMessage, workerQueueSize)
		d.workers[key] = queue
		d.wg.Add(1)
		go d.worker(ctx, queue)
	}
	d.mu.Unlock()

	select {
	case queue <- msg:
	default:
		logger.WarnCF("dispatch", "conversation queue full, dropping message", map[string]any{
			"conversation": key,
		})
	}
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan bus.InboundMessage) {
	defer d.wg.Done()
	for msg := range queue {
		d.handle(ctx, msg)
	}
}

// handle processes one message start to finish. Every failure becomes a
// single user-facing reply; nothing here can take down the dispatch loop.
func (d *Dispatcher) handle(ctx context.Context, msg bus.InboundMessage) {
	requestID := uuid.NewString()
	logger.DebugCF("dispatch", "handling message", map[string]any{
		"request_id": requestID,
		"channel":    msg.Channel,
		"chat_id":    msg.ChatID,
	})

	route := router.Classify(msg)

	var reply string
	var presented *selection.Presented
	var err error

	switch route.Kind {
	case router.KindCommand:
		reply, presented, err = d.runCommand(ctx, msg, route)
	case router.KindReply:
		reply, err = d.runReply(ctx, msg, route)
		if reply == "" && err == nil {
			return
		}
	default:
		reply = "I didn't get it\n\n" + helpText
	}

	if err != nil {
		logger.ErrorCF("dispatch", "command failed", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
		reply = "❌ " + userMessage(err)
		presented = nil
	}
	if reply == "" {
		return
	}

	anchorID, sendErr := d.sender.Send(ctx, bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		ReplyToID: msg.MessageID,
		Content:   reply,
	})
	if sendErr != nil {
		logger.ErrorCF("dispatch", "reply delivery failed", map[string]any{
			"request_id": requestID,
			"error":      sendErr.Error(),
		})
		return
	}

	// A list only becomes selectable once its anchor message exists.
	if presented != nil {
		d.engine.Remember(msg.Channel, msg.ChatID, anchorID, *presented)
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, msg bus.InboundMessage, route router.Route) (string, *selection.Presented, error) {
	switch route.Command {
	case "/help":
		return helpText, nil, nil

	case "/chat-id":
		return "Chat ID: " + msg.ChatID, nil, nil

	case "/search":
		if route.Args == "" {
			return "", nil, errors.New("send the query after the command (/search The Matrix)")
		}
		return d.presentSearch(ctx, route.Args)

	case "/imdb":
		if route.Args == "" {
			return "", nil, errors.New("send the IMDb link after the command")
		}
		title, err := d.meta.Lookup(ctx, route.Args)
		if err != nil {
			return "", nil, err
		}
		return d.presentSearch(ctx, title)

	case "/torrent-tv", "/torrent-movie":
		if route.Args == "" {
			return "", nil, fmt.Errorf("send the magnet-url after the command (%s magnet_url)", route.Command)
		}
		cat := media.TV
		if route.Command == "/torrent-movie" {
			cat = media.Movie
		}
		reply, err := d.exec.Execute(ctx, selection.Action{
			Kind:      selection.AddTorrent,
			Category:  cat,
			MagnetURI: route.Args,
		})
		return reply, nil, err

	case "/status":
		reply, err := d.exec.Execute(ctx, selection.Action{Kind: selection.ShowStatus})
		return reply, nil, err

	case "/delete-torrent":
		torrents, err := d.exec.ListTorrents(ctx)
		if err != nil {
			return "", nil, err
		}
		p := selection.PresentTorrents(torrents, media.Unknown, d.paths.TVPath, d.paths.MoviePath)
		return p.Text, &p, nil

	case "/delete-tv":
		return d.presentFiles(media.TV)

	case "/delete-movie":
		return d.presentFiles(media.Movie)

	case "/stop-seed":
		reply, err := d.exec.Execute(ctx, selection.Action{Kind: selection.StopSeed})
		return reply, nil, err

	case "/storage":
		reply, err := d.exec.Execute(ctx, selection.Action{Kind: selection.ShowStorage})
		return reply, nil, err

	case "/restructure":
		cat, ok := media.Parse(route.Args)
		if !ok {
			return "", nil, errors.New("usage: /restructure <tv|movie>")
		}
		return d.presentRestructure(ctx, cat)

	default:
		return helpText, nil, nil
	}
}

func (d *Dispatcher) presentSearch(ctx context.Context, query string) (string, *selection.Presented, error) {
	results, err := d.search.Search(ctx, query)
	if err != nil {
		return "", nil, err
	}
	p := selection.PresentSearch(results)
	return p.Text, &p, nil
}

func (d *Dispatcher) presentFiles(cat media.Category) (string, *selection.Presented, error) {
	root, err := d.exec.LibraryRoot(cat)
	if err != nil {
		return "", nil, err
	}
	entries, err := storage.ListEntries(root)
	if err != nil {
		return "", nil, err
	}
	p := selection.PresentFiles(entries, cat)
	return p.Text, &p, nil
}

func (d *Dispatcher) presentRestructure(ctx context.Context, cat media.Category) (string, *selection.Presented, error) {
	root, err := d.exec.LibraryRoot(cat)
	if err != nil {
		return "", nil, err
	}
	plan, err := d.planner.BuildPlan(ctx, cat, root)
	if err != nil {
		return "", nil, err
	}
	if len(plan.Operations) == 0 {
		return restructure.FormatPlan(plan), nil, nil
	}

	candidates := make([]session.Candidate, 0, len(plan.Operations))
	for i, op := range plan.Operations {
		candidates = append(candidates, session.Candidate{
			Index:      i + 1,
			Title:      op.DisplayName,
			Category:   cat,
			Path:       op.SourcePath,
			TargetPath: op.TargetPath,
			IsSubtitle: op.IsSubtitle,
		})
	}
	p := selection.Presented{
		Text:       restructure.FormatPlan(plan),
		Kind:       session.RestructureSelection,
		Candidates: candidates,
	}
	return p.Text, &p, nil
}

// runReply resolves a reply against the session anchored on the
// replied-to message. Replies to messages without a session are ignored
// unless they look like a selection, which gets an expiry notice.
func (d *Dispatcher) runReply(ctx context.Context, msg bus.InboundMessage, route router.Route) (string, error) {
	sess, ok := d.store.Get(msg.Channel, msg.ChatID, route.AnchorID)
	if !ok {
		if route.Selector.Valid {
			return "", selection.ErrSessionNotFound
		}
		return "", nil
	}

	if sess.Kind == session.RestructureSelection {
		return d.runRestructureReply(msg, route, sess)
	}

	if !route.Selector.Valid {
		return "", &selection.InvalidSelectionError{Max: len(sess.Candidates)}
	}

	action, err := d.engine.Resolve(
		msg.Channel, msg.ChatID, route.AnchorID,
		route.Selector.Index, route.Selector.Override)
	if err != nil {
		return "", err
	}

	return d.exec.Execute(ctx, action)
}

func (d *Dispatcher) runRestructureReply(msg bus.InboundMessage, route router.Route, sess *session.Context) (string, error) {
	plan := &restructure.Plan{Category: sess.Candidates[0].Category}
	for _, c := range sess.Candidates {
		plan.Operations = append(plan.Operations, restructure.Operation{
			SourcePath:  c.Path,
			TargetPath:  c.TargetPath,
			DisplayName: c.Title,
			IsSubtitle:  c.IsSubtitle,
		})
	}

	selected, err := restructure.ParseReply(route.Selector.Raw, plan)
	if err != nil {
		if errors.Is(err, restructure.ErrCancelled) {
			d.store.Remove(msg.Channel, msg.ChatID, route.AnchorID)
			return "Restructure cancelled", nil
		}
		// Bad grammar keeps the plan pending for a retry.
		return "", err
	}

	d.store.Remove(msg.Channel, msg.ChatID, route.AnchorID)
	return restructure.ExecuteMoves(selected), nil
}

// userMessage converts internal errors into a reply the user can act on.
func userMessage(err error) string {
	var invalid *selection.InvalidSelectionError

	switch {
	case errors.Is(err, selection.ErrSessionNotFound):
		return "That selection expired, run the command again"
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.Is(err, selection.ErrAmbiguousCategory):
		return "Ambiguous category, reply with 'tv <number>' or 'movie <number>'"
	case errors.Is(err, storage.ErrOutsideRoot):
		return "Refusing to delete outside the configured library root"
	case errors.Is(err, jackett.ErrNoIndexers):
		return "The indexer has no trackers configured"
	case errors.Is(err, jackett.ErrNoResults):
		return "No results found"
	case errors.Is(err, omdb.ErrNotConfigured):
		return "IMDb lookups need an OMDb API key configured"
	case errors.Is(err, context.DeadlineExceeded):
		return "Backend not responding, try again later"
	default:
		return err.Error()
	}
}
