package status

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal"
	"github.com/tinyland-inc/torrentclaw/pkg/transmission"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show active downloads from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return statusCmd()
		},
	}
}

var statusNames = map[int]string{
	transmission.StatusStopped:        "stopped",
	transmission.StatusQueuedVerify:   "queued",
	transmission.StatusVerifying:      "verifying",
	transmission.StatusQueuedDownload: "queued",
	transmission.StatusDownloading:    "downloading",
	transmission.StatusQueuedSeed:     "queued",
	transmission.StatusSeeding:        "seeding",
}

func statusCmd() error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	client := transmission.NewClient(transmission.Config{
		URL:         cfg.Transmission.URL,
		Credentials: cfg.Transmission.Credentials,
		Timeout:     time.Duration(cfg.Transmission.TimeoutSeconds) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	torrents, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("listing torrents: %w", err)
	}

	if len(torrents) == 0 {
		fmt.Println("No active downloads")
		return nil
	}

	fmt.Printf("%-4s %-12s %-6s %-10s %s\n", "ID", "STATUS", "DONE", "SIZE", "NAME")
	for _, t := range torrents {
		name, ok := statusNames[t.Status]
		if !ok {
			name = "unknown"
		}
		fmt.Printf("%-4d %-12s %5d%% %-10s %s\n",
			t.ID, name, int(t.PercentDone*100), humanize.Bytes(uint64(t.TotalSize)), t.Name)
	}
	return nil
}
