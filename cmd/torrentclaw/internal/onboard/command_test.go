package onboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOnboardCommand(t *testing.T) {
	cmd := NewOnboardCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "onboard", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("force"))
}

func TestOnboardWritesConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, onboardCmd(false))

	path := filepath.Join(home, ".torrentclaw", "config.json")
	_, err := os.Stat(path)
	require.NoError(t, err)

	// A second run without --force must refuse to overwrite.
	assert.Error(t, onboardCmd(false))
	assert.NoError(t, onboardCmd(true))
}
