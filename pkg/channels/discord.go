package channels

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

// DiscordChannel uses the gateway for inbound messages. Discord's native
// message references serve as the reply anchor.
type DiscordChannel struct {
	*BaseChannel
	token   string
	session *discordgo.Session
}

func NewDiscordChannel(cfg config.DiscordConfig, b *bus.MessageBus) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", b, cfg.AllowFrom),
		token:       cfg.Token,
	}
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}

	c.session = session
	c.SetRunning(true)
	logger.InfoC("discord", "channel started")
	return nil
}

func (c *DiscordChannel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}

	replyToID := ""
	if m.MessageReference != nil {
		replyToID = m.MessageReference.MessageID
	}

	c.HandleMessage(m.ID, m.Author.ID, m.ChannelID, replyToID, m.Content)
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			return err
		}
	}
	logger.InfoC("discord", "channel stopped")
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) (string, error) {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.ReplyToID != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: msg.ReplyToID,
			ChannelID: msg.ChatID,
		}
	}

	sent, err := c.session.ChannelMessageSendComplex(msg.ChatID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("sending discord message: %w", err)
	}
	return sent.ID, nil
}
