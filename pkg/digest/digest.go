// Package digest pushes a scheduled storage summary to configured chats,
// so a filling disk is noticed before downloads start failing.
package digest

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
	"github.com/tinyland-inc/torrentclaw/pkg/executor"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
	"github.com/tinyland-inc/torrentclaw/pkg/storage"
)

// Service evaluates the cron schedule once a minute and publishes the
// digest on the outbound bus when due.
type Service struct {
	cfg   config.DigestConfig
	paths config.TransmissionConfig
	bus   *bus.MessageBus
	now   func() time.Time
}

func NewService(cfg config.DigestConfig, paths config.TransmissionConfig, b *bus.MessageBus) *Service {
	return &Service{
		cfg:   cfg,
		paths: paths,
		bus:   b,
		now:   time.Now,
	}
}

// Run ticks until ctx is canceled. No-op when the digest is disabled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	gron := gronx.New()
	if !gron.IsValid(s.cfg.Schedule) {
		logger.ErrorCF("digest", "invalid cron schedule", map[string]any{
			"schedule": s.cfg.Schedule,
		})
		return
	}

	logger.InfoCF("digest", "digest scheduled", map[string]any{
		"schedule": s.cfg.Schedule,
		"targets":  len(s.cfg.Targets),
	})

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	gron := gronx.New()
	due, err := gron.IsDue(s.cfg.Schedule, s.now())
	if err != nil || !due {
		return
	}
	s.publish(ctx)
}

func (s *Service) publish(ctx context.Context) {
	usages, err := storage.DiskUsage([]string{s.paths.TVPath, s.paths.MoviePath})
	if err != nil {
		logger.ErrorCF("digest", "disk usage failed", map[string]any{"error": err.Error()})
		return
	}

	text := executor.FormatStorage(usages)
	for _, target := range s.cfg.Targets {
		err := s.bus.PublishOutbound(ctx, bus.OutboundMessage{
			Channel: target.Channel,
			ChatID:  target.ChatID,
			Content: text,
		})
		if err != nil {
			logger.ErrorCF("digest", "publish failed", map[string]any{
				"channel": target.Channel,
				"chat_id": target.ChatID,
				"error":   err.Error(),
			})
		}
	}
}
