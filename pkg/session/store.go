// Package session keeps the pending-disambiguation contexts created when
// the bot presents a numbered list. A context lives until it is resolved,
// removed, or its TTL passes; everything here is process-local and safe to
// lose on restart.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/tinyland-inc/torrentclaw/pkg/logger"
	"github.com/tinyland-inc/torrentclaw/pkg/media"
)

// Kind tells the dispatcher how to interpret a reply to the anchored list.
type Kind int

const (
	SearchSelection Kind = iota
	DeleteTorrentSelection
	DeleteFileSelection
	RestructureSelection
)

func (k Kind) String() string {
	switch k {
	case SearchSelection:
		return "search"
	case DeleteTorrentSelection:
		return "delete-torrent"
	case DeleteFileSelection:
		return "delete-file"
	case RestructureSelection:
		return "restructure"
	default:
		return "unknown"
	}
}

// Candidate is one selectable entry of a presented list. Which reference
// fields are populated depends on the context kind.
type Candidate struct {
	Index    int
	Title    string
	Category media.Category

	// Search selections
	MagnetURI  string
	TorrentURL string
	SizeBytes  int64
	Seeders    int64

	// Torrent deletions
	TorrentID int64

	// File deletions and restructure moves
	Path       string
	TargetPath string
	IsSubtitle bool
}

// Context is the pending record behind one anchored list message.
// Candidate indices are 1-based and contiguous.
type Context struct {
	Channel    string
	ChatID     string
	AnchorID   string
	Kind       Kind
	Candidates []Candidate
	CreatedAt  time.Time
}

type key struct {
	channel  string
	chatID   string
	anchorID string
}

// Store is a mutex-protected TTL map of Contexts keyed by
// (channel, chat, anchor message). Keying on the chat prevents cross-chat
// confusion when two chats produce colliding message IDs. Expired entries
// are invisible to Get regardless of sweep timing; the sweep only bounds
// memory.
type Store struct {
	mu      sync.Mutex
	entries map[key]*Context
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a store with the given TTL. A nil clock means
// time.Now; tests inject their own.
func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		entries: make(map[key]*Context),
		ttl:     ttl,
		now:     now,
	}
}

// Put stores a context, replacing any previous one under the same anchor.
func (s *Store) Put(c *Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.entries[key{c.Channel, c.ChatID, c.AnchorID}] = c
}

// Get returns the live context for an anchor. An expired context is
// evicted and reported as absent.
func (s *Store) Get(channel, chatID, anchorID string) (*Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{channel, chatID, anchorID}
	c, ok := s.entries[k]
	if !ok {
		return nil, false
	}
	if s.expired(c, s.now()) {
		delete(s.entries, k)
		return nil, false
	}
	return c, true
}

func (s *Store) Remove(channel, chatID, anchorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key{channel, chatID, anchorID})
}

// SweepExpired evicts every context whose TTL passed before now and
// returns how many were removed.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, c := range s.entries {
		if s.expired(c, now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) expired(c *Context, now time.Time) bool {
	return s.ttl > 0 && !now.Before(c.CreatedAt.Add(s.ttl))
}

// StartSweeper runs the periodic sweep until ctx is canceled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.SweepExpired(now); n > 0 {
					logger.DebugCF("session", "swept expired selections", map[string]any{"count": n})
				}
			}
		}
	}()
}
