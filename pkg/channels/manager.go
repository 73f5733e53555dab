package channels

import (
	"context"
	"fmt"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
)

// Manager owns the enabled channels and routes outbound messages to the
// right one by name.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
}

// NewManager builds a channel for every enabled platform in the config.
func NewManager(cfg config.ChannelsConfig, b *bus.MessageBus) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]Channel),
		bus:      b,
	}

	if cfg.Telegram.Enabled {
		m.channels["telegram"] = NewTelegramChannel(cfg.Telegram, b)
	}
	if cfg.Discord.Enabled {
		m.channels["discord"] = NewDiscordChannel(cfg.Discord, b)
	}
	if cfg.Slack.Enabled {
		m.channels["slack"] = NewSlackChannel(cfg.Slack, b)
	}
	if cfg.Console.Enabled {
		m.channels["console"] = NewConsoleChannel(b)
	}

	if len(m.channels) == 0 {
		return nil, fmt.Errorf("no channels enabled")
	}
	return m, nil
}

func (m *Manager) StartAll(ctx context.Context) error {
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("starting %s channel: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) {
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "stop failed", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
}

// Send delivers a message via the channel it names and returns the sent
// message's platform ID.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) (string, error) {
	ch, ok := m.channels[msg.Channel]
	if !ok {
		return "", fmt.Errorf("unknown channel %q", msg.Channel)
	}
	return ch.Send(ctx, msg)
}

// RunOutbound pumps bus outbound messages (digest notifications) into
// their channels until ctx is canceled.
func (m *Manager) RunOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if _, err := m.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "outbound delivery failed", map[string]any{
				"channel": msg.Channel,
				"error":   err.Error(),
			})
		}
	}
}

// Names lists the active channels.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
