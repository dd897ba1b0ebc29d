// Package cropstudio provides interactive fixed-ratio image cropping.
//
// An uploaded image is fitted to every configured crop preset. Each crop can
// then be panned, zoomed and scaled on its own before all of them are
// exported in one go.
//
// Basic usage:
//
//	studio := cropstudio.New()
//
//	ok, err := studio.Open("photo.jpg")
//	if err != nil || !ok {
//		log.Fatal("not an image")
//	}
//
//	s := studio.Session()
//	_ = s.SetZoom("square", 1.4)
//	_ = s.Drag("square", -30, 0)
//	_ = s.SetScale("wide", 2)
//
//	if err := s.Crop(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//	paths, err := studio.WriteResults("out")
//
// The package consists of these components:
//
//  1. Geometry (pkg/geometry): cover layout, pan clamping, zoom anchoring and
//     source rectangle math
//  2. Session (pkg/session): per-target pan/zoom/scale state and the
//     all-or-nothing export
//  3. Cropper (pkg/cropper): concurrent render and encode of a batch
//  4. Loader and Processing (pkg/loader, pkg/processing): decoding uploads
//     and encoding JPEG/WebP output
//  5. Focus (pkg/focus): optional automatic framing, content-aware, by face
//     detection, or backed by an Ollama or llama.cpp vision model
package cropstudio

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/crop-studio/internal/config"
	"github.com/menta2k/crop-studio/internal/utils"
	"github.com/menta2k/crop-studio/pkg/blob"
	"github.com/menta2k/crop-studio/pkg/cropper"
	"github.com/menta2k/crop-studio/pkg/focus"
	"github.com/menta2k/crop-studio/pkg/loader"
	"github.com/menta2k/crop-studio/pkg/processing"
	"github.com/menta2k/crop-studio/pkg/session"
)

// Version of the crop studio library
const Version = "1.0.0"

// Studio wires a session to its loader, cropper and blob store
type Studio struct {
	loader    *loader.Loader
	processor *processing.Processor
	store     *blob.Store
	session   *session.Session
	finder    session.FocusFinder
	log       logrus.FieldLogger
}

// New creates a Studio with default configuration
func New() *Studio {
	s, err := NewWithConfig(config.Default(), logrus.StandardLogger())
	if err != nil {
		// defaults always validate
		panic(err)
	}
	return s
}

// NewWithConfig creates a Studio from cfg
func NewWithConfig(cfg *config.Config, log logrus.FieldLogger) (*Studio, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	format, err := processing.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	finder, err := NewFinder(cfg.Focus, log)
	if err != nil {
		return nil, err
	}

	processor := processing.NewProcessor()
	store := blob.NewStore()
	l := loader.NewWithConfig(loader.Config{
		SupportedFormats: cfg.Loader.SupportedFormats,
		MinImageSize:     cfg.Loader.MinImageSize,
	})
	c := cropper.NewWithConfig(cropper.CropConfig{
		Format:      format,
		Concurrency: cfg.Output.Concurrency,
	}, processor, store, log)

	sess := session.New(session.Options{
		Presets:      cfg.Session.Presets,
		Scales:       cfg.Session.Scales,
		PreviewWidth: cfg.Session.PreviewWidth,
		Quality:      cfg.Session.Quality,
	}, l, c, store, log)

	return &Studio{
		loader:    l,
		processor: processor,
		store:     store,
		session:   sess,
		finder:    finder,
		log:       log,
	}, nil
}

// NewFinder builds the focus finder selected by cfg; nil for "none"
func NewFinder(cfg config.FocusConfig, log logrus.FieldLogger) (session.FocusFinder, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "smart":
		return focus.NewSmartFinder(), nil
	case "faces":
		return focus.NewFaceFinderFromFile(cfg.Cascade, focus.DefaultFaceConfig())
	case "ollama":
		return focus.NewVisionFinder(cfg.URL, visionConfig(cfg), log)
	case "llamacpp":
		client, err := focus.NewLlamaCppClient(cfg.URL)
		if err != nil {
			return nil, err
		}
		return focus.NewVisionFinderWithClient(client, visionConfig(cfg), log), nil
	default:
		return nil, fmt.Errorf("unknown focus backend: %s", cfg.Backend)
	}
}

func visionConfig(cfg config.FocusConfig) focus.VisionConfig {
	return focus.VisionConfig{
		Model:    cfg.Model,
		SendSize: cfg.SendSize,
		SendQ:    cfg.SendQ,
	}
}

// Session returns the cropping session
func (s *Studio) Session() *session.Session {
	return s.session
}

// Store returns the blob store holding exported results
func (s *Studio) Store() *blob.Store {
	return s.store
}

// Open loads an image file into the session. It reports false when the
// file is not an image.
func (s *Studio) Open(path string) (bool, error) {
	upload, err := s.loader.ReadFile(path)
	if err != nil {
		return false, err
	}
	return s.session.Load(upload)
}

// AutoFocus frames every target on the configured focus finder's subject.
// Without a finder it is a no-op.
func (s *Studio) AutoFocus(ctx context.Context) error {
	if s.finder == nil {
		return nil
	}
	return s.session.Focus(ctx, s.finder)
}

// WriteResults saves every current result into dir and returns the paths
func (s *Studio) WriteResults(dir string) ([]string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var paths []string
	for _, out := range s.session.Results() {
		data, err := s.store.Get(out.Handle)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, out.Filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to save %s: %w", out.Filename, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteDebugOverlay saves the loaded image with every target's source
// rectangle outlined.
func (s *Studio) WriteDebugOverlay(path string) error {
	desc := s.session.Image()
	if desc == nil {
		return session.ErrNoImage
	}

	rects, err := s.session.SourceRects()
	if err != nil {
		return err
	}

	var regions []image.Rectangle
	for _, t := range s.session.Targets() {
		regions = append(regions, rects[t.ID])
	}

	overlay := s.processor.CreateDebugOverlay(desc.Image, regions)
	return s.processor.SaveImage(overlay, path, utils.GetFileExtension(path), 92, false)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
