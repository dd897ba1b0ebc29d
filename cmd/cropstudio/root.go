package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cropstudio "github.com/menta2k/crop-studio"
	"github.com/menta2k/crop-studio/internal/config"
	"github.com/menta2k/crop-studio/internal/utils"
)

// newRootCmd builds the command tree. Each call gets its own viper instance
// so flags, env and config file are resolved per invocation.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "cropstudio",
		Short: "Crop an image to fixed-ratio presets",
		Long: `cropstudio fits an image to every configured crop preset, applies
per-preset pan, zoom and output scale, and exports all crops in one go.

Examples:
  # Crop with the default presets into ./output
  cropstudio crop photo.jpg

  # Zoom the square crop, nudge it left and export the wide one at 2x as WebP
  cropstudio crop photo.jpg --zoom square=1.4 --pan square=-30,0 --scale wide=2 -f webp

  # Let the content-aware finder pick the framing
  cropstudio crop photo.jpg --focus smart -o crops

  # Write the default configuration to edit
  cropstudio config init`,
		Version:       cropstudio.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/crop-studio/config.json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to a rotating file instead of stderr")

	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))

	loadConfig := func() (*config.Config, error) {
		path := cfgFile
		if path == "" && utils.FileExists(config.GetConfigPath()) {
			path = config.GetConfigPath()
		}

		cfg, err := config.Load(v, path)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	rootCmd.AddCommand(newCropCmd(v, loadConfig))
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}
