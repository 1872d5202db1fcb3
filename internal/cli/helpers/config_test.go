package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoot(t *testing.T) *cobra.Command {
	t.Helper()
	root := &cobra.Command{Use: "coral-profiler"}
	AddGlobalFlags(root.PersistentFlags())
	return root
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiling_group_name: checkout\nlogging:\n  level: warn\n"), 0o600))

	var loadedGroup, loadedLevel string
	root := newRoot(t)
	root.AddCommand(&cobra.Command{
		Use: "show",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd)
			if err != nil {
				return err
			}
			loadedGroup = cfg.ProfilingGroupName
			loadedLevel = cfg.Logging.Level
			return nil
		},
	})
	root.SetArgs([]string{"show", "--config", path})
	require.NoError(t, root.Execute())

	assert.Equal(t, "checkout", loadedGroup)
	assert.Equal(t, "warn", loadedLevel)
}

func TestLoadConfigLogFlagsOverride(t *testing.T) {
	var loadedLevel string
	var loadedPretty bool
	root := newRoot(t)
	root.AddCommand(&cobra.Command{
		Use: "show",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd)
			if err != nil {
				return err
			}
			loadedLevel = cfg.Logging.Level
			loadedPretty = cfg.Logging.Pretty
			return nil
		},
	})
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	root.SetArgs([]string{"show", "--config", missing, "--log-level", "debug", "--log-pretty=false"})
	require.NoError(t, root.Execute())

	assert.Equal(t, "debug", loadedLevel)
	assert.False(t, loadedPretty)
}
