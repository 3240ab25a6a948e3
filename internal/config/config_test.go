package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osal.yaml")
	doc := `
kernel:
  tick_hz: 100
demo:
  sample_period_ms: 250
  queue_depth: 16
storage:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.Kernel.TickHz)
	require.Equal(t, 8, cfg.Kernel.Priorities, "untouched keys keep defaults")
	require.Equal(t, uint32(250), cfg.Demo.SamplePeriodMs)
	require.Equal(t, uint32(16), cfg.Demo.QueueDepth)
	require.False(t, cfg.Storage.Enabled)
	require.NoError(t, Validate(cfg))
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("kernel:\n  tick_rate: 5\n"))
	require.Error(t, err)
}

func TestDecodeEmptyDocument(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"tick rate zero", func(c *Config) { c.Kernel.TickHz = 0 }, "kernel.tick_hz"},
		{"tick rate too high", func(c *Config) { c.Kernel.TickHz = MaxTickHz + 1 }, "kernel.tick_hz"},
		{"too few priorities", func(c *Config) { c.Kernel.Priorities = 4 }, "kernel.priorities"},
		{"too many priorities", func(c *Config) { c.Kernel.Priorities = 33 }, "kernel.priorities"},
		{"zero period", func(c *Config) { c.Demo.SamplePeriodMs = 0 }, "demo.sample_period_ms"},
		{"queue too deep", func(c *Config) { c.Demo.QueueDepth = 129 }, "demo.queue_depth"},
		{"empty queue", func(c *Config) { c.Demo.QueueDepth = 0 }, "demo.queue_depth"},
		{"button on LED", func(c *Config) { c.Demo.ButtonPin = 0 }, "demo.button_pin"},
		{"shared pin", func(c *Config) { c.Demo.SensorCSPin = c.Demo.ButtonPin }, "demo.sensor_cs_pin"},
		{"tiny card", func(c *Config) { c.Storage.ImageBlocks = 16 }, "storage.image_blocks"},
		{"no log path", func(c *Config) { c.Storage.LogPath = " " }, "storage.log_path"},
		{"negative step", func(c *Config) { c.Run.StepHz = -1 }, "run.step_hz"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	cfg := Default()
	cfg.Storage = StorageConfig{}
	require.NoError(t, Validate(cfg), "disabled storage skips its checks")
}

func TestNormalize(t *testing.T) {
	cfg := Default()
	cfg.Kernel.TickHz = 100
	cfg.Run.StepHz = 0
	cfg.Storage.LogPath = " data.log "
	cfg.Storage.ImagePath = " sd.img\n"
	require.NoError(t, Validate(cfg))

	Normalize(cfg)
	require.Equal(t, 100, cfg.Run.StepHz, "clamped to the tick rate")
	require.Equal(t, "/data.log", cfg.Storage.LogPath)
	require.Equal(t, "sd.img", cfg.Storage.ImagePath)

	Normalize(nil)
}
