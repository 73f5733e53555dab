package onboard

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/torrentclaw/cmd/torrentclaw/internal"
	"github.com/tinyland-inc/torrentclaw/pkg/config"
)

func NewOnboardCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a starter config to ~/.torrentclaw/config.json",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return onboardCmd(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")

	return cmd
}

func onboardCmd(force bool) error {
	path := internal.GetConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("%s Config written to %s\n", internal.Logo, path)
	fmt.Println("Fill in at least:")
	fmt.Println("  • jackett.api_key")
	fmt.Println("  • transmission.tv_path and movie_path")
	fmt.Println("  • one channel token (channels.telegram.token, ...)")
	fmt.Println("Then start with: torrentclaw gateway")
	return nil
}
