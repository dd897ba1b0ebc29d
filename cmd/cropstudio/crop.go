package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cropstudio "github.com/menta2k/crop-studio"
	"github.com/menta2k/crop-studio/internal/config"
	"github.com/menta2k/crop-studio/internal/logging"
	"github.com/menta2k/crop-studio/internal/utils"
	"github.com/menta2k/crop-studio/pkg/session"
)

// errCropFailed is all the user sees of an export failure
var errCropFailed = errors.New("cropping failed, please try again")

func newCropCmd(v *viper.Viper, loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crop <image>",
		Short: "Export every crop preset of an image",
		Args:  cobra.ExactArgs(1),
	}

	defaults := config.Default()

	// Output options
	cmd.Flags().StringP("out", "o", defaults.Output.Dir, "output directory")
	cmd.Flags().StringP("format", "f", defaults.Output.Format, "output format (jpg|webp)")
	cmd.Flags().Float64P("quality", "q", defaults.Session.Quality, "output quality (0.1-1.0)")
	cmd.Flags().Int("concurrency", defaults.Output.Concurrency, "max crops encoded at once, 0 = all")
	cmd.Flags().Bool("debug", false, "also write the source image with every crop outlined")

	// Framing options
	cmd.Flags().StringArray("zoom", nil, "zoom of a preset as id=value (1-2), repeatable")
	cmd.Flags().StringArray("pan", nil, "move a preset's image by preview pixels as id=dx,dy, repeatable")
	cmd.Flags().StringArray("scale", nil, "output scale of a preset as id=value, repeatable")

	// Focus options
	cmd.Flags().String("focus", defaults.Focus.Backend, "initial framing (none|smart|faces|ollama|llamacpp)")
	cmd.Flags().String("focus-url", defaults.Focus.URL, "vision model server URL")
	cmd.Flags().String("model", defaults.Focus.Model, "vision model name")
	cmd.Flags().String("cascade", defaults.Focus.Cascade, "pigo face cascade file for --focus faces")

	v.BindPFlag("output.dir", cmd.Flags().Lookup("out"))
	v.BindPFlag("output.format", cmd.Flags().Lookup("format"))
	v.BindPFlag("output.concurrency", cmd.Flags().Lookup("concurrency"))
	v.BindPFlag("session.quality", cmd.Flags().Lookup("quality"))
	v.BindPFlag("focus.backend", cmd.Flags().Lookup("focus"))
	v.BindPFlag("focus.url", cmd.Flags().Lookup("focus-url"))
	v.BindPFlag("focus.model", cmd.Flags().Lookup("model"))
	v.BindPFlag("focus.cascade", cmd.Flags().Lookup("cascade"))

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		adj, err := readAdjustments(cmd)
		if err != nil {
			return err
		}

		debug, _ := cmd.Flags().GetBool("debug")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runCrop(ctx, cmd, cfg, args[0], adj, debug)
	}

	return cmd
}

func readAdjustments(cmd *cobra.Command) (*adjustments, error) {
	zooms, _ := cmd.Flags().GetStringArray("zoom")
	pans, _ := cmd.Flags().GetStringArray("pan")
	scales, _ := cmd.Flags().GetStringArray("scale")
	return parseAdjustments(zooms, pans, scales)
}

func runCrop(ctx context.Context, cmd *cobra.Command, cfg *config.Config, input string, adj *adjustments, debug bool) error {
	log, logFile, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logFile.Close()

	if !utils.FileExists(input) {
		return fmt.Errorf("input file not found: %s", input)
	}

	studio, err := cropstudio.NewWithConfig(cfg, log)
	if err != nil {
		return err
	}

	ok, err := studio.Open(input)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	if !ok {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipping %s: not an image\n", input)
		return nil
	}

	if err := studio.AutoFocus(ctx); err != nil {
		log.WithError(err).Warn("automatic framing failed, keeping centered crops")
	}

	s := studio.Session()
	if err := adj.apply(s); err != nil {
		return err
	}

	// the session has already logged the cause
	if err := s.Crop(ctx); err != nil {
		return errCropFailed
	}

	paths, err := studio.WriteResults(cfg.Output.Dir)
	if err != nil {
		return err
	}

	results := s.Results()
	for i, path := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%dx%d, %s)\n",
			path, results[i].Width, results[i].Height, utils.FormatFileSize(int64(results[i].Size())))
	}

	if debug {
		path := filepath.Join(cfg.Output.Dir, utils.BaseName(input)+"_debug.png")
		if err := studio.WriteDebugOverlay(path); err != nil {
			log.WithError(err).Warn("debug overlay failed")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
	}

	log.WithFields(logrus.Fields{
		"input":   input,
		"outputs": len(paths),
		"quality": s.Quality(),
	}).Info("done")

	return nil
}

// apply sets zoom before pan so a pan is measured at the final zoom
func (a *adjustments) apply(s *session.Session) error {
	for _, z := range a.zooms {
		if err := s.SetZoom(z.id, z.value); err != nil {
			return fmt.Errorf("--zoom %s: %w", z.id, err)
		}
	}
	for _, p := range a.pans {
		if err := s.Drag(p.id, p.dx, p.dy); err != nil {
			return fmt.Errorf("--pan %s: %w", p.id, err)
		}
	}
	for _, sc := range a.scales {
		if err := s.SetScale(sc.id, sc.value); err != nil {
			return fmt.Errorf("--scale %s: %w", sc.id, err)
		}
	}
	return nil
}
