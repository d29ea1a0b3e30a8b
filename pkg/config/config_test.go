package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tramp-rpc-server/internal/bytesize"
	"github.com/marmos91/tramp-rpc-server/pkg/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, 64*bytesize.MiB, cfg.Server.MaxFrameSize)
	assert.Equal(t, 16, cfg.Server.Workers)
	assert.Equal(t, runtime.NumCPU(), cfg.Server.ParallelCommands)
	assert.Equal(t, time.Second, cfg.Server.ShutdownDrain)
	assert.Equal(t, 64*bytesize.KiB, cfg.Process.OutputFragmentSize)
	assert.Equal(t, 5*time.Second, cfg.Process.StopTimeout)

	require.NoError(t, config.Validate(cfg))
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Server.Workers)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
server:
  workers: 4
  max_frame_size: 16Mi
  shutdown_drain: 2s
process:
  stop_timeout: 10s
  term: xterm
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level is normalized")
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, 16*bytesize.MiB, cfg.Server.MaxFrameSize)
	assert.Equal(t, 2*time.Second, cfg.Server.ShutdownDrain)
	assert.Equal(t, 10*time.Second, cfg.Process.StopTimeout)
	assert.Equal(t, "xterm", cfg.Process.Term)
	// Unset sections keep their defaults.
	assert.Equal(t, 64*bytesize.KiB, cfg.Process.OutputFragmentSize)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad level", func(c *config.Config) { c.Logging.Level = "LOUD" }},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"stdout logs", func(c *config.Config) { c.Logging.Output = "stdout" }},
		{"tiny frame", func(c *config.Config) { c.Server.MaxFrameSize = 16 }},
		{"huge frame", func(c *config.Config) { c.Server.MaxFrameSize = 2 * bytesize.GiB }},
		{"no workers", func(c *config.Config) { c.Server.Workers = -1 }},
		{"fragment vs frame", func(c *config.Config) {
			c.Server.MaxFrameSize = 4 * bytesize.KiB
			c.Process.OutputFragmentSize = 4 * bytesize.KiB
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.Error(t, config.Validate(cfg))
		})
	}
}

func TestLoad_BadFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: SHOUTING\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
