// Package channels connects chat platforms to the message bus. Each
// channel authenticates with its platform, feeds authorized messages
// inbound, and delivers replies. Send returns the platform ID of the sent
// message so numbered lists can become reply anchors.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Send delivers a message and returns its platform message ID.
	Send(ctx context.Context, msg bus.OutboundMessage) (string, error)
	IsRunning() bool
	IsAllowed(chatID string) bool
}

type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, b *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       b,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

// IsAllowed checks the chat against the allow-list. An empty list
// authorizes every chat.
func (c *BaseChannel) IsAllowed(chatID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if chatID == allowed {
			return true
		}
	}
	return false
}

// HandleMessage publishes an inbound message if the chat is authorized.
// Unauthorized chats are dropped without a reply, leaving no probe
// surface; the drop is only logged.
func (c *BaseChannel) HandleMessage(messageID, senderID, chatID, replyToID, content string) {
	if !c.IsAllowed(chatID) {
		logger.DebugCF(c.name, "dropped message from unauthorized chat", map[string]any{
			"chat_id": chatID,
		})
		return
	}

	msg := bus.InboundMessage{
		Channel:   c.name,
		SenderID:  senderID,
		ChatID:    chatID,
		MessageID: messageID,
		ReplyToID: replyToID,
		Content:   content,
	}

	if err := c.bus.PublishInbound(context.TODO(), msg); err != nil {
		logger.ErrorCF(c.name, "failed to publish inbound message", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}
