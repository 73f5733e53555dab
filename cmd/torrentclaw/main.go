package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal"
	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal/gateway"
	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal/onboard"
	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal/status"
	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal/version"
)

func NewTorrentclawCommand() *cobra.Command {
	short := fmt.Sprintf("%s torrentclaw - Chat-driven torrent orchestrator v%s\n\n",
		internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "torrentclaw",
		Short:   short,
		Example: "torrentclaw gateway",
	}

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		gateway.NewGatewayCommand(),
		status.NewStatusCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewTorrentclawCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
