package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/executor"
	"github.com/tinyland-inc/torrentclaw/pkg/jackett"
	"github.com/tinyland-inc/torrentclaw/pkg/omdb"
	"github.com/tinyland-inc/torrentclaw/pkg/session"
	"github.com/tinyland-inc/torrentclaw/pkg/transmission"
)

// fakeSender records outbound messages and hands out sequential message
// IDs, mimicking a chat platform.
type fakeSender struct {
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	counter int
}

func (f *fakeSender) Send(_ context.Context, msg bus.OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	f.counter++
	return "bot-" + strconv.Itoa(f.counter), nil
}

func (f *fakeSender) last(t *testing.T) bus.OutboundMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) lastID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return "bot-" + strconv.Itoa(f.counter)
}

type addCall struct {
	Filename    string
	DownloadDir string
}

// testBackend fakes the Jackett search endpoint and the Transmission RPC
// endpoint on one server.
type testBackend struct {
	mu          sync.Mutex
	searchBody  string
	adds        []addCall
	removedIDs  []int64
	stopAllSeen bool
}

func (tb *testBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2.0/indexers/all/results", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tb.searchBody)
	})
	mux.HandleFunc("/transmission/rpc", func(w http.ResponseWriter, r *http.Request) {
		var call struct {
			Method    string         `json:"method"`
			Arguments map[string]any `json:"arguments"`
		}
		json.NewDecoder(r.Body).Decode(&call)

		tb.mu.Lock()
		switch call.Method {
		case "torrent-add":
			filename, _ := call.Arguments["filename"].(string)
			dir, _ := call.Arguments["download-dir"].(string)
			tb.adds = append(tb.adds, addCall{Filename: filename, DownloadDir: dir})
		case "torrent-remove":
			for _, id := range call.Arguments["ids"].([]any) {
				tb.removedIDs = append(tb.removedIDs, int64(id.(float64)))
			}
		case "torrent-stop":
			tb.stopAllSeen = true
		}
		tb.mu.Unlock()

		if call.Method == "torrent-get" {
			fmt.Fprint(w, `{"result": "success", "arguments": {"torrents": [
				{"id": 1, "name": "show", "status": 4, "percentDone": 0.5, "downloadDir": "/tv"},
				{"id": 2, "name": "film", "status": 6, "percentDone": 1.0, "downloadDir": "/movies"}
			]}}`)
			return
		}
		fmt.Fprint(w, `{"result": "success"}`)
	})
	return mux
}

func newTestDispatcher(t *testing.T, tb *testBackend) (*Dispatcher, *fakeSender) {
	t.Helper()
	srv := httptest.NewServer(tb.handler())
	t.Cleanup(srv.Close)

	paths := config.TransmissionConfig{TVPath: t.TempDir(), MoviePath: t.TempDir()}
	search := jackett.NewClient(jackett.Config{URL: srv.URL, APIKey: "key"})
	downloads := transmission.NewClient(transmission.Config{URL: srv.URL})
	exec := executor.New(search, downloads, paths)
	meta := omdb.NewClient(omdb.Config{})
	sender := &fakeSender{}
	store := session.NewStore(5*time.Minute, nil)

	d := NewDispatcher(bus.NewMessageBus(), sender, store, exec, search, meta, paths)
	return d, sender
}

func inbound(content, replyTo string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   "telegram",
		SenderID:  "user",
		ChatID:    "chat1",
		MessageID: "m1",
		ReplyToID: replyTo,
		Content:   content,
	}
}

const threeResults = `{
	"Indexers": [{"Name": "idx"}],
	"Results": [
		{"Title": "low", "Seeders": 5, "MagnetUri": "magnet:low", "Category": [2000]},
		{"Title": "high", "Seeders": 50, "MagnetUri": "magnet:high", "Category": [2000]},
		{"Title": "mid", "Seeders": 20, "MagnetUri": "magnet:mid", "Category": [2000]}
	]
}`

func TestHelpCommand(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("/help", ""))

	if !strings.Contains(sender.last(t).Content, "/search") {
		t.Errorf("help reply = %q", sender.last(t).Content)
	}
}

func TestChatIDCommand(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("/chat-id", ""))

	if sender.last(t).Content != "Chat ID: chat1" {
		t.Errorf("reply = %q", sender.last(t).Content)
	}
}

func TestSearchThenReplySelectsBySeedOrder(t *testing.T) {
	tb := &testBackend{searchBody: threeResults}
	d, sender := newTestDispatcher(t, tb)
	ctx := context.Background()

	d.handle(ctx, inbound("/search matrix", ""))

	list := sender.last(t).Content
	if !strings.Contains(list, "1. high") || !strings.Contains(list, "2. mid") || !strings.Contains(list, "3. low") {
		t.Fatalf("list not in seed order:\n%s", list)
	}
	anchor := sender.lastID()

	// Position 2 is the item that originally had 20 seeders.
	d.handle(ctx, inbound("2", anchor))

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if len(tb.adds) != 1 {
		t.Fatalf("adds = %d, want 1", len(tb.adds))
	}
	if tb.adds[0].Filename != "magnet:mid" {
		t.Errorf("added %q, want magnet:mid", tb.adds[0].Filename)
	}
	if sender.last(t).Content != "🧲 Added torrent" {
		t.Errorf("reply = %q", sender.last(t).Content)
	}
}

func TestReplyToExpiredSession(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("2", "never-existed"))

	reply := sender.last(t).Content
	if !strings.HasPrefix(reply, "❌") || !strings.Contains(reply, "expired") {
		t.Errorf("reply = %q", reply)
	}
}

func TestNonSelectorReplyToForeignMessageIsIgnored(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("thanks!", "some-human-message"))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 0 {
		t.Errorf("sent %d messages, want silence", len(sender.sent))
	}
}

func TestInvalidIndexKeepsSessionForRetry(t *testing.T) {
	tb := &testBackend{searchBody: threeResults}
	d, sender := newTestDispatcher(t, tb)
	ctx := context.Background()

	d.handle(ctx, inbound("/search matrix", ""))
	anchor := sender.lastID()

	d.handle(ctx, inbound("9", anchor))
	if !strings.Contains(sender.last(t).Content, "between 1 and 3") {
		t.Errorf("reply = %q, want the valid range", sender.last(t).Content)
	}

	d.handle(ctx, inbound("1", anchor))
	if sender.last(t).Content != "🧲 Added torrent" {
		t.Errorf("retry reply = %q", sender.last(t).Content)
	}
}

func TestAmbiguousCategoryNeedsOverride(t *testing.T) {
	tb := &testBackend{searchBody: `{
		"Indexers": [{"Name": "idx"}],
		"Results": [{"Title": "mystery", "Seeders": 9, "MagnetUri": "magnet:m"}]
	}`}
	d, sender := newTestDispatcher(t, tb)
	ctx := context.Background()

	d.handle(ctx, inbound("/search mystery", ""))
	anchor := sender.lastID()

	d.handle(ctx, inbound("1", anchor))
	if !strings.Contains(sender.last(t).Content, "tv") {
		t.Errorf("reply = %q, want the override hint", sender.last(t).Content)
	}

	d.handle(ctx, inbound("movie 1", anchor))

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if len(tb.adds) != 1 {
		t.Fatalf("adds = %d, want 1 after override", len(tb.adds))
	}
}

func TestDeleteTorrentFlow(t *testing.T) {
	tb := &testBackend{}
	d, sender := newTestDispatcher(t, tb)
	ctx := context.Background()

	d.handle(ctx, inbound("/delete-torrent", ""))
	anchor := sender.lastID()
	if !strings.Contains(sender.last(t).Content, "1.") {
		t.Fatalf("list = %q", sender.last(t).Content)
	}

	d.handle(ctx, inbound("2", anchor))

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if len(tb.removedIDs) != 1 || tb.removedIDs[0] != 2 {
		t.Errorf("removed = %v, want the 2nd listed torrent (id 2)", tb.removedIDs)
	}
}

func TestStopSeedCommand(t *testing.T) {
	tb := &testBackend{}
	d, sender := newTestDispatcher(t, tb)

	d.handle(context.Background(), inbound("/stop-seed", ""))

	tb.mu.Lock()
	stopped := tb.stopAllSeen
	tb.mu.Unlock()
	if !stopped {
		t.Error("torrent-stop never called")
	}
	if !strings.Contains(sender.last(t).Content, "Stopped seeding") {
		t.Errorf("reply = %q", sender.last(t).Content)
	}
}

func TestStatusCommand(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("/status", ""))

	reply := sender.last(t).Content
	if !strings.Contains(reply, "show") || !strings.Contains(reply, "film") {
		t.Errorf("status = %q", reply)
	}
}

func TestSearchNoResultsError(t *testing.T) {
	tb := &testBackend{searchBody: `{"Indexers": [{"Name": "idx"}], "Results": []}`}
	d, sender := newTestDispatcher(t, tb)

	d.handle(context.Background(), inbound("/search nothing", ""))

	if sender.last(t).Content != "❌ No results found" {
		t.Errorf("reply = %q", sender.last(t).Content)
	}
}

func TestUnknownCommandGetsHelpSummary(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("/frobnicate", ""))

	reply := sender.last(t).Content
	if !strings.Contains(reply, "/search") || !strings.Contains(reply, "/torrent-tv") {
		t.Errorf("reply = %q, want the command summary", reply)
	}
}

func TestUnrecognizedTextGetsHelpSummary(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("hello there", ""))

	reply := sender.last(t).Content
	if !strings.Contains(reply, "I didn't get it") || !strings.Contains(reply, "/search") {
		t.Errorf("reply = %q, want the command summary", reply)
	}
}

func TestRepliesThreadOntoTriggeringMessage(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})

	d.handle(context.Background(), inbound("/chat-id", ""))

	if got := sender.last(t).ReplyToID; got != "m1" {
		t.Errorf("ReplyToID = %q, want m1", got)
	}
}

func TestResolveIsAtMostOnce(t *testing.T) {
	tb := &testBackend{searchBody: threeResults}
	d, sender := newTestDispatcher(t, tb)
	ctx := context.Background()

	d.handle(ctx, inbound("/search matrix", ""))
	anchor := sender.lastID()

	d.handle(ctx, inbound("1", anchor))
	d.handle(ctx, inbound("1", anchor))

	tb.mu.Lock()
	adds := len(tb.adds)
	tb.mu.Unlock()
	if adds != 1 {
		t.Errorf("adds = %d, a session must resolve at most once", adds)
	}
	if !strings.Contains(sender.last(t).Content, "expired") {
		t.Errorf("second reply = %q", sender.last(t).Content)
	}
}

func TestConversationOrderingAcrossChats(t *testing.T) {
	d, sender := newTestDispatcher(t, &testBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Run(ctx)

	for i := 0; i < 3; i++ {
		msg := inbound("/chat-id", "")
		msg.ChatID = "chat-a"
		d.bus.PublishInbound(ctx, msg)

		msg.ChatID = "chat-b"
		d.bus.PublishInbound(ctx, msg)
	}

	deadline := time.After(2 * time.Second)
	for {
		sender.mu.Lock()
		n := len(sender.sent)
		sender.mu.Unlock()
		if n == 6 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("got %d replies, want 6", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
