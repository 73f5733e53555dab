package channels

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

// TelegramChannel receives updates via long polling and sends replies
// threaded onto the message being answered.
type TelegramChannel struct {
	*BaseChannel
	token  string
	bot    *telego.Bot
	cancel context.CancelFunc
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", b, cfg.AllowFrom),
		token:       cfg.Token,
	}
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	bot, err := telego.NewBot(c.token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("creating telegram bot: %w", err)
	}
	c.bot = bot

	ctx, c.cancel = context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting telegram long polling: %w", err)
	}

	go func() {
		for update := range updates {
			c.handleUpdate(update)
		}
	}()

	c.SetRunning(true)
	logger.InfoC("telegram", "channel started")
	return nil
}

func (c *TelegramChannel) handleUpdate(update telego.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}

	senderID := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}
	replyToID := ""
	if msg.ReplyToMessage != nil {
		replyToID = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	c.HandleMessage(
		strconv.Itoa(msg.MessageID),
		senderID,
		strconv.FormatInt(msg.Chat.ID, 10),
		replyToID,
		msg.Text,
	)
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.SetRunning(false)
	logger.InfoC("telegram", "channel stopped")
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) (string, error) {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad telegram chat id %q: %w", msg.ChatID, err)
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   msg.Content,
	}
	if msg.ReplyToID != "" {
		if replyTo, err := strconv.Atoi(msg.ReplyToID); err == nil {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo}
		}
	}

	sent, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return "", fmt.Errorf("sending telegram message: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}
