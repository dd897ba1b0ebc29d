package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/menta2k/crop-studio/pkg/processing"
	"github.com/menta2k/crop-studio/pkg/session"
	"github.com/menta2k/crop-studio/pkg/types"
)

// EnvPrefix is prepended to environment overrides, e.g. CROPSTUDIO_OUTPUT_FORMAT
const EnvPrefix = "CROPSTUDIO"

// Config holds the application configuration
type Config struct {
	Session SessionConfig `json:"session" mapstructure:"session"`
	Loader  LoaderConfig  `json:"loader" mapstructure:"loader"`
	Output  OutputConfig  `json:"output" mapstructure:"output"`
	Focus   FocusConfig   `json:"focus" mapstructure:"focus"`
	Log     LogConfig     `json:"log" mapstructure:"log"`
}

// SessionConfig holds the crop presets and control ranges
type SessionConfig struct {
	Presets      []types.CropPreset `json:"presets" mapstructure:"presets"`
	Scales       []float64          `json:"scales" mapstructure:"scales"`
	PreviewWidth float64            `json:"preview_width" mapstructure:"preview_width"`
	Quality      float64            `json:"quality" mapstructure:"quality"`
}

// LoaderConfig holds configuration for accepting uploads
type LoaderConfig struct {
	SupportedFormats []string `json:"supported_formats" mapstructure:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" mapstructure:"min_image_size"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format      string `json:"format" mapstructure:"format"`
	Dir         string `json:"dir" mapstructure:"dir"`
	Concurrency int    `json:"concurrency" mapstructure:"concurrency"`
}

// FocusConfig selects how the initial framing is chosen
type FocusConfig struct {
	Backend  string `json:"backend" mapstructure:"backend"` // none, smart, faces, ollama or llamacpp
	URL      string `json:"url" mapstructure:"url"`
	Model    string `json:"model" mapstructure:"model"`
	SendSize int    `json:"send_size" mapstructure:"send_size"`
	SendQ    int    `json:"send_quality" mapstructure:"send_quality"`
	Cascade  string `json:"cascade" mapstructure:"cascade"` // pigo face cascade for the faces backend
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file" mapstructure:"file"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Presets:      append([]types.CropPreset(nil), session.DefaultPresets...),
			Scales:       append([]float64(nil), session.DefaultScales...),
			PreviewWidth: session.DefaultPreviewWidth,
			Quality:      session.DefaultQuality,
		},
		Loader: LoaderConfig{
			SupportedFormats: []string{"jpeg", "png", "gif", "webp", "avif"},
			MinImageSize:     1,
		},
		Output: OutputConfig{
			Format: string(processing.JPEG),
			Dir:    "./output",
		},
		Focus: FocusConfig{
			Backend:  "none",
			URL:      "http://localhost:11434",
			Model:    "openbmb/minicpm-v4.5",
			SendSize: 1536,
			SendQ:    85,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (if not empty) and CROPSTUDIO_*
// environment variables on top of the defaults. Flags already bound to v
// take precedence.
func Load(v *viper.Viper, path string) (*Config, error) {
	cfg := Default()

	v.SetDefault("session.preview_width", cfg.Session.PreviewWidth)
	v.SetDefault("session.quality", cfg.Session.Quality)
	v.SetDefault("output.format", cfg.Output.Format)
	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.concurrency", cfg.Output.Concurrency)
	v.SetDefault("focus.backend", cfg.Focus.Backend)
	v.SetDefault("focus.url", cfg.Focus.URL)
	v.SetDefault("focus.model", cfg.Focus.Model)
	v.SetDefault("focus.send_size", cfg.Focus.SendSize)
	v.SetDefault("focus.send_quality", cfg.Focus.SendQ)
	v.SetDefault("focus.cascade", cfg.Focus.Cascade)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// lists from a file replace the defaults instead of merging into them
	if v.IsSet("session.presets") {
		cfg.Session.Presets = nil
	}
	if v.IsSet("session.scales") {
		cfg.Session.Scales = nil
	}
	if v.IsSet("loader.supported_formats") {
		cfg.Loader.SupportedFormats = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Session.Presets) == 0 {
		return fmt.Errorf("session.presets cannot be empty")
	}

	seen := make(map[string]bool, len(c.Session.Presets))
	for _, p := range c.Session.Presets {
		if p.ID == "" {
			return fmt.Errorf("session.presets: id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("session.presets: duplicate id %q", p.ID)
		}
		seen[p.ID] = true
		if p.BaseWidth <= 0 || p.BaseHeight <= 0 {
			return fmt.Errorf("session.presets %q: base size must be positive", p.ID)
		}
	}

	if len(c.Session.Scales) == 0 {
		return fmt.Errorf("session.scales cannot be empty")
	}
	for _, s := range c.Session.Scales {
		if s <= 0 {
			return fmt.Errorf("session.scales must be positive, got %g", s)
		}
	}

	if c.Session.PreviewWidth <= 0 {
		return fmt.Errorf("session.preview_width must be positive")
	}

	if c.Session.Quality < session.MinQuality || c.Session.Quality > session.MaxQuality {
		return fmt.Errorf("session.quality must be between %.1f and %.1f", session.MinQuality, session.MaxQuality)
	}

	if len(c.Loader.SupportedFormats) == 0 {
		return fmt.Errorf("loader.supported_formats cannot be empty")
	}

	if c.Loader.MinImageSize < 1 {
		return fmt.Errorf("loader.min_image_size must be positive")
	}

	if _, err := processing.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}

	if c.Output.Concurrency < 0 {
		return fmt.Errorf("output.concurrency cannot be negative")
	}

	switch c.Focus.Backend {
	case "none", "smart":
	case "faces":
		if c.Focus.Cascade == "" {
			return fmt.Errorf("focus.cascade is required for the faces backend")
		}
	case "ollama", "llamacpp":
		if c.Focus.URL == "" || c.Focus.Model == "" {
			return fmt.Errorf("focus.url and focus.model are required for the %s backend", c.Focus.Backend)
		}
	default:
		return fmt.Errorf("focus.backend must be one of none, smart, faces, ollama, llamacpp; got %q", c.Focus.Backend)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "crop-studio", "config.json")
}
