package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"pixelgardenlabs.io/janus/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, runtime.NumCPU(), cfg.Threads)
	require.Equal(t, 64, cfg.BufferSizeKB)
	require.Equal(t, int64(64*1024), cfg.BufferSize())
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.PreserveMtime)
	require.False(t, cfg.Delete)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
threads: 3
bufferSizeKB: 128
delete: true
verify: true
logLevel: debug
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Threads)
	require.Equal(t, int64(128*1024), cfg.BufferSize())
	require.True(t, cfg.Delete)
	require.True(t, cfg.Verify)
	require.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	require.True(t, cfg.PreserveMtime)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "thread: 3\n")
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsNegativeValues(t *testing.T) {
	path := writeConfig(t, "threads: -1\n")
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateNormalizesZeroValues(t *testing.T) {
	cfg := config.Config{}
	require.NoError(t, cfg.Validate())
	require.Equal(t, runtime.NumCPU(), cfg.Threads)
	require.Equal(t, 64, cfg.BufferSizeKB)
	require.Equal(t, "info", cfg.LogLevel)
}
