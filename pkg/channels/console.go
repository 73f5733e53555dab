package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

// ConsoleChannel is a readline loop for local testing without any chat
// platform. The terminal cannot reply to a message, so input that parses
// as a selector is treated as a reply to the bot's last message.
type ConsoleChannel struct {
	*BaseChannel
	cancel context.CancelFunc

	counter atomic.Int64

	mu         sync.Mutex
	lastSentID string
}

const consoleChatID = "console"

func NewConsoleChannel(b *bus.MessageBus) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: NewBaseChannel("console", b, nil),
	}
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "🧲 > ",
		HistoryFile:     filepath.Join(os.TempDir(), ".torrentclaw_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		defer rl.Close()
		for ctx.Err() == nil {
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					return
				}
				continue
			}

			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}

			replyToID := ""
			if looksLikeSelector(input) {
				c.mu.Lock()
				replyToID = c.lastSentID
				c.mu.Unlock()
			}

			id := strconv.FormatInt(c.counter.Add(1), 10)
			c.HandleMessage(id, consoleChatID, consoleChatID, replyToID, input)
		}
	}()

	c.SetRunning(true)
	logger.InfoC("console", "channel started")
	return nil
}

// looksLikeSelector matches input that only makes sense as a reply to a
// numbered list: a bare index, a tv/movie override, or a restructure
// confirmation.
func looksLikeSelector(input string) bool {
	if _, err := strconv.Atoi(input); err == nil {
		return true
	}
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "tv ") || strings.HasPrefix(lower, "movie ") {
		return true
	}
	return lower == "cancel" || lower == "apply" || strings.HasPrefix(lower, "apply ")
}

func (c *ConsoleChannel) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.SetRunning(false)
	return nil
}

func (c *ConsoleChannel) Send(ctx context.Context, msg bus.OutboundMessage) (string, error) {
	fmt.Printf("\n%s\n\n", msg.Content)

	id := "bot-" + strconv.FormatInt(c.counter.Add(1), 10)
	c.mu.Lock()
	c.lastSentID = id
	c.mu.Unlock()
	return id, nil
}
