package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal"
	"github.com/tinyland-inc/torrentclaw/pkg/bus"
	"github.com/tinyland-inc/torrentclaw/pkg/channels"
	"github.com/tinyland-inc/torrentclaw/pkg/digest"
	"github.com/tinyland-inc/torrentclaw/pkg/dispatch"
	"github.com/tinyland-inc/torrentclaw/pkg/executor"
	"github.com/tinyland-inc/torrentclaw/pkg/health"
	"github.com/tinyland-inc/torrentclaw/pkg/jackett"
	"github.com/tinyland-inc/torrentclaw/pkg/logger"
	"github.com/tinyland-inc/torrentclaw/pkg/omdb"
	"github.com/tinyland-inc/torrentclaw/pkg/session"
	"github.com/tinyland-inc/torrentclaw/pkg/transmission"
)

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	searchClient := jackett.NewClient(jackett.Config{
		URL:        cfg.Jackett.URL,
		APIKey:     cfg.Jackett.APIKey,
		MaxResults: cfg.Jackett.MaxResults,
		Timeout:    time.Duration(cfg.Jackett.TimeoutSeconds) * time.Second,
	})
	downloadClient := transmission.NewClient(transmission.Config{
		URL:         cfg.Transmission.URL,
		Credentials: cfg.Transmission.Credentials,
		Timeout:     time.Duration(cfg.Transmission.TimeoutSeconds) * time.Second,
	})
	metaClient := omdb.NewClient(omdb.Config{
		APIKey:  cfg.OMDB.APIKey,
		Timeout: time.Duration(cfg.OMDB.TimeoutSeconds) * time.Second,
	})

	msgBus := bus.NewMessageBus()

	channelManager, err := channels.NewManager(cfg.Channels, msgBus)
	if err != nil {
		return fmt.Errorf("error creating channel manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := session.NewStore(cfg.Session.TTL(), nil)
	store.StartSweeper(ctx, cfg.Session.SweepInterval())

	exec := executor.New(searchClient, downloadClient, cfg.Transmission)
	dispatcher := dispatch.NewDispatcher(
		msgBus, channelManager, store, exec, searchClient, metaClient, cfg.Transmission)

	if err := channelManager.StartAll(ctx); err != nil {
		cancel()
		channelManager.StopAll(context.Background())
		return fmt.Errorf("error starting channels: %w", err)
	}
	fmt.Printf("✓ Channels enabled: %s\n", strings.Join(channelManager.Names(), ", "))

	go dispatcher.Run(ctx)
	go channelManager.RunOutbound(ctx)

	digestService := digest.NewService(cfg.Digest, cfg.Transmission, msgBus)
	go digestService.Run(ctx)
	if cfg.Digest.Enabled {
		fmt.Printf("✓ Storage digest scheduled: %s\n", cfg.Digest.Schedule)
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("health", "Health server error", map[string]any{"error": err.Error()})
		}
	}()
	healthServer.SetReady(true)
	fmt.Printf("✓ Health endpoints available at http://%s:%d/health and /ready\n",
		cfg.Gateway.Host, cfg.Gateway.Port)

	fmt.Printf("✓ Gateway started\n")
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	healthServer.SetReady(false)
	cancel()
	msgBus.Close()
	healthServer.Stop(context.Background())
	channelManager.StopAll(context.Background())
	fmt.Println("✓ Gateway stopped")

	return nil
}
