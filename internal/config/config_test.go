package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Session.Presets, 2)
	assert.Equal(t, []float64{0.5, 1, 1.5, 2, 2.5}, cfg.Session.Scales)
	assert.Equal(t, 450.0, cfg.Session.PreviewWidth)
	assert.Equal(t, 0.92, cfg.Session.Quality)
	assert.Equal(t, "jpg", cfg.Output.Format)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
session:
  preview_width: 600
  presets:
    - id: story
      label: Story
      base_width: 9
      base_height: 16
output:
  format: webp
  dir: /tmp/crops
log:
  level: debug
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 600.0, cfg.Session.PreviewWidth)
	require.Len(t, cfg.Session.Presets, 1)
	assert.Equal(t, "story", cfg.Session.Presets[0].ID)
	assert.Equal(t, "", cfg.Session.Presets[0].Suffix)
	assert.Equal(t, 16, cfg.Session.Presets[0].BaseHeight)
	assert.Equal(t, "webp", cfg.Output.Format)
	assert.Equal(t, "/tmp/crops", cfg.Output.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched sections keep defaults
	assert.Equal(t, 0.92, cfg.Session.Quality)
	assert.Len(t, cfg.Session.Scales, 5)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CROPSTUDIO_OUTPUT_FORMAT", "webp")
	t.Setenv("CROPSTUDIO_SESSION_QUALITY", "0.5")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "webp", cfg.Output.Format)
	assert.Equal(t, 0.5, cfg.Session.Quality)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := Default()
	cfg.Output.Dir = "/srv/out"

	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no presets", func(c *Config) { c.Session.Presets = nil }},
		{"duplicate preset", func(c *Config) { c.Session.Presets = append(c.Session.Presets, c.Session.Presets[0]) }},
		{"zero base", func(c *Config) { c.Session.Presets[0].BaseHeight = 0 }},
		{"no scales", func(c *Config) { c.Session.Scales = nil }},
		{"negative scale", func(c *Config) { c.Session.Scales = []float64{-1} }},
		{"preview width", func(c *Config) { c.Session.PreviewWidth = 0 }},
		{"quality", func(c *Config) { c.Session.Quality = 0.01 }},
		{"formats", func(c *Config) { c.Loader.SupportedFormats = nil }},
		{"min size", func(c *Config) { c.Loader.MinImageSize = 0 }},
		{"output format", func(c *Config) { c.Output.Format = "png" }},
		{"concurrency", func(c *Config) { c.Output.Concurrency = -1 }},
		{"focus backend", func(c *Config) { c.Focus.Backend = "magic" }},
		{"ollama without model", func(c *Config) { c.Focus.Backend = "ollama"; c.Focus.Model = "" }},
		{"faces without cascade", func(c *Config) { c.Focus.Backend = "faces" }},
		{"llamacpp without url", func(c *Config) { c.Focus.Backend = "llamacpp"; c.Focus.URL = "" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
