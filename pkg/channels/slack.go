package channels

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

// SlackChannel runs in Socket Mode. Slack has no per-message reply
// references, so the thread root timestamp stands in for the anchor:
// replies in a list's thread resolve against the list's session.
type SlackChannel struct {
	*BaseChannel
	botToken string
	appToken string
	api      *slack.Client
	client   *socketmode.Client
	cancel   context.CancelFunc
}

func NewSlackChannel(cfg config.SlackConfig, b *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: NewBaseChannel("slack", b, cfg.AllowFrom),
		botToken:    cfg.BotToken,
		appToken:    cfg.AppToken,
	}
}

func (c *SlackChannel) Start(ctx context.Context) error {
	c.api = slack.New(c.botToken, slack.OptionAppLevelToken(c.appToken))
	c.client = socketmode.New(c.api)

	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		if err := c.client.RunContext(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("slack", "socket mode stopped", map[string]any{"error": err.Error()})
		}
	}()
	go c.handleEvents(ctx)

	c.SetRunning(true)
	logger.InfoC("slack", "channel started")
	return nil
}

func (c *SlackChannel) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.client.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			c.client.Ack(*evt.Request)

			ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
			if !ok || ev.BotID != "" || ev.Text == "" {
				continue
			}

			c.HandleMessage(ev.TimeStamp, ev.User, ev.Channel, ev.ThreadTimeStamp, ev.Text)
		}
	}
}

func (c *SlackChannel) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.SetRunning(false)
	logger.InfoC("slack", "channel stopped")
	return nil
}

// Send posts the message. The returned anchor is the thread root: the
// replied-to timestamp when threading, otherwise the new message's own
// timestamp, so thread replies land on the right session either way.
func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyToID != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyToID))
	}

	_, ts, err := c.api.PostMessageContext(ctx, msg.ChatID, opts...)
	if err != nil {
		return "", fmt.Errorf("posting slack message: %w", err)
	}

	if msg.ReplyToID != "" {
		return msg.ReplyToID, nil
	}
	return ts, nil
}
