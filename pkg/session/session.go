// Package session holds the interactive cropping state for one loaded image:
// a record per crop target with its pan position, zoom, output scale and last
// exported result.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/crop-studio/internal/utils"
	"github.com/menta2k/crop-studio/pkg/blob"
	"github.com/menta2k/crop-studio/pkg/cropper"
	"github.com/menta2k/crop-studio/pkg/geometry"
	"github.com/menta2k/crop-studio/pkg/loader"
	"github.com/menta2k/crop-studio/pkg/types"
)

const (
	DefaultQuality      = 0.92
	MinQuality          = 0.1
	MaxQuality          = 1.0
	MinZoom             = 1.0
	MaxZoom             = 2.0
	DefaultPreviewWidth = 450
)

// DefaultScales are the selectable output scale multipliers
var DefaultScales = []float64{0.5, 1, 1.5, 2, 2.5}

// DefaultPresets are the crop targets offered for every image
var DefaultPresets = []types.CropPreset{
	{ID: "square", Label: "Square", BaseWidth: 1055, BaseHeight: 967, Suffix: "_square"},
	{ID: "wide", Label: "Wide", BaseWidth: 1280, BaseHeight: 550, Suffix: "_wide"},
}

var (
	ErrNoImage       = errors.New("no image loaded")
	ErrUnknownTarget = errors.New("unknown crop target")
	ErrZoomRange     = fmt.Errorf("zoom must be between %.0f and %.0f", MinZoom, MaxZoom)
	ErrInvalidScale  = errors.New("scale is not one of the presets")
	ErrQualityRange  = fmt.Errorf("quality must be between %.1f and %.1f", MinQuality, MaxQuality)
	ErrInvalidPan    = errors.New("pan offset must be a finite number")
	ErrImageChanged  = errors.New("image changed while finding focus")
)

// FocusFinder locates the point of interest of an image, normalized to [0,1]
type FocusFinder interface {
	FindFocus(ctx context.Context, img image.Image, ratio float64) (float64, float64, error)
}

// Options configures a session
type Options struct {
	Presets      []types.CropPreset
	Scales       []float64
	PreviewWidth float64
	Quality      float64 // export quality after each load
}

// Target is the per-image state of one crop preset
type Target struct {
	types.CropTarget
	Layout   geometry.Layout
	Position geometry.Point
	Zoom     float64
	Scale    float64
	Result   *cropper.Output
}

// Rendered returns the size of the image in the preview at the current zoom
func (t *Target) Rendered() geometry.Size {
	return t.Layout.Image.Scale(t.Zoom)
}

// Session is the state of one image being cropped
type Session struct {
	mu      sync.Mutex
	opts    Options
	loader  *loader.Loader
	cropper *cropper.Cropper
	store   *blob.Store
	log     logrus.FieldLogger

	image   *types.ImageDescriptor
	targets []*Target
	quality float64
}

// New creates an empty session. Zero-valued options fall back to the
// defaults.
func New(opts Options, l *loader.Loader, c *cropper.Cropper, store *blob.Store, log logrus.FieldLogger) *Session {
	if len(opts.Presets) == 0 {
		opts.Presets = DefaultPresets
	}
	if len(opts.Scales) == 0 {
		opts.Scales = DefaultScales
	}
	if opts.PreviewWidth <= 0 {
		opts.PreviewWidth = DefaultPreviewWidth
	}
	if opts.Quality < MinQuality || opts.Quality > MaxQuality {
		opts.Quality = DefaultQuality
	}

	return &Session{
		opts:    opts,
		loader:  l,
		cropper: c,
		store:   store,
		log:     log,
		quality: opts.Quality,
	}
}

// Load replaces the current image with upload. Uploads that are not images
// are ignored and report false with a nil error. On a decode error the
// session is left as it was.
func (s *Session) Load(upload types.Upload) (bool, error) {
	if !s.loader.IsImage(upload) {
		s.log.WithFields(logrus.Fields{
			"name": upload.Name,
			"type": upload.ContentType,
		}).Debug("ignoring non-image upload")
		return false, nil
	}

	desc, err := s.loader.Load(upload)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	s.image = desc
	s.quality = s.opts.Quality
	s.targets = make([]*Target, 0, len(s.opts.Presets))
	for _, p := range s.opts.Presets {
		s.targets = append(s.targets, s.newTarget(p))
	}

	s.log.WithFields(logrus.Fields{
		"name":    desc.Name,
		"width":   desc.Width,
		"height":  desc.Height,
		"targets": len(s.targets),
	}).Info("image loaded")

	return true, nil
}

func (s *Session) newTarget(p types.CropPreset) *Target {
	w, h := geometry.FitTarget(s.image.Width, s.image.Height, p.Ratio())
	w, h = max(w, 1), max(h, 1)

	layout := geometry.Cover(s.opts.PreviewWidth, float64(w)/float64(h), s.image.Width, s.image.Height)

	return &Target{
		CropTarget: types.CropTarget{
			ID:     p.ID,
			Label:  p.Label,
			Suffix: p.Suffix,
			Width:  w,
			Height: h,
		},
		Layout:   layout,
		Position: geometry.CenterPosition(layout.Container, layout.Image),
		Zoom:     1,
		Scale:    1,
	}
}

// Image returns the loaded image, or nil
func (s *Session) Image() *types.ImageDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Quality returns the export quality
func (s *Session) Quality() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// Scales returns the selectable output scales
func (s *Session) Scales() []float64 {
	return append([]float64(nil), s.opts.Scales...)
}

// Targets returns a snapshot of every target in preset order
func (s *Session) Targets() []Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Target, len(s.targets))
	for i, t := range s.targets {
		out[i] = *t
	}
	return out
}

// Target returns a snapshot of the target with id
func (s *Session) Target(id string) (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.targetLocked(id)
	if err != nil {
		return Target{}, err
	}
	return *t, nil
}

func (s *Session) targetLocked(id string) (*Target, error) {
	if s.image == nil {
		return nil, ErrNoImage
	}
	for _, t := range s.targets {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
}

// Drag moves the image of target id by (dx, dy) preview pixels
func (s *Session) Drag(id string, dx, dy float64) error {
	if !finite(dx) || !finite(dy) {
		return fmt.Errorf("%w: (%g, %g)", ErrInvalidPan, dx, dy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.targetLocked(id)
	if err != nil {
		return err
	}

	t.Position = geometry.ClampPosition(geometry.Point{
		X: t.Position.X + dx,
		Y: t.Position.Y + dy,
	}, t.Layout.Container, t.Rendered())
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SetZoom changes the zoom of target id, keeping the container center
// anchored to the same image point.
func (s *Session) SetZoom(id string, zoom float64) error {
	if math.IsNaN(zoom) || zoom < MinZoom || zoom > MaxZoom {
		return fmt.Errorf("%w: %g", ErrZoomRange, zoom)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.targetLocked(id)
	if err != nil {
		return err
	}

	t.Position = geometry.ZoomPosition(t.Position, t.Zoom, zoom, t.Layout.Container, t.Layout.Image)
	t.Zoom = zoom
	return nil
}

// SetScale picks the output scale of target id
func (s *Session) SetScale(id string, scale float64) error {
	if !s.isScale(scale) {
		return fmt.Errorf("%w: %g", ErrInvalidScale, scale)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.targetLocked(id)
	if err != nil {
		return err
	}
	t.Scale = scale
	return nil
}

func (s *Session) isScale(scale float64) bool {
	for _, v := range s.opts.Scales {
		if math.Abs(v-scale) < 1e-9 {
			return true
		}
	}
	return false
}

// SetQuality sets the export quality for every target
func (s *Session) SetQuality(q float64) error {
	if math.IsNaN(q) || q < MinQuality || q > MaxQuality {
		return fmt.Errorf("%w: %g", ErrQualityRange, q)
	}

	s.mu.Lock()
	s.quality = q
	s.mu.Unlock()
	return nil
}

// Center re-centers target id at its current zoom
func (s *Session) Center(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.targetLocked(id)
	if err != nil {
		return err
	}
	t.Position = geometry.CenterPosition(t.Layout.Container, t.Rendered())
	return nil
}

// Focus asks finder for the point of interest of each target's framing and
// pans that point to the container center. The finder runs without the
// session lock; positions change only if it succeeds for every target.
func (s *Session) Focus(ctx context.Context, finder FocusFinder) error {
	s.mu.Lock()
	desc := s.image
	if desc == nil {
		s.mu.Unlock()
		return ErrNoImage
	}
	targets := make([]*Target, len(s.targets))
	ratios := make([]float64, len(s.targets))
	for i, t := range s.targets {
		targets[i] = t
		ratios[i] = t.Ratio()
	}
	s.mu.Unlock()

	points := make([]geometry.Point, len(targets))
	for i, t := range targets {
		fx, fy, err := finder.FindFocus(ctx, desc.Image, ratios[i])
		if err != nil {
			return fmt.Errorf("finding focus for %s: %w", t.ID, err)
		}
		if !finite(fx) || !finite(fy) {
			return fmt.Errorf("finding focus for %s: invalid point (%g, %g)", t.ID, fx, fy)
		}
		points[i] = geometry.Point{X: fx, Y: fy}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image != desc {
		return ErrImageChanged
	}
	for i, t := range targets {
		p := points[i]
		t.Position = geometry.FocusPosition(p.X, p.Y, t.Layout.Container, t.Rendered())

		s.log.WithFields(logrus.Fields{
			"target": t.ID,
			"fx":     p.X,
			"fy":     p.Y,
		}).Debug("focus applied")
	}
	return nil
}

// SourceRects returns, per target, the region of the original image the
// current framing would export.
func (s *Session) SourceRects() (map[string]image.Rectangle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return nil, ErrNoImage
	}

	out := make(map[string]image.Rectangle, len(s.targets))
	for _, t := range s.targets {
		out[t.ID] = geometry.SourceRect(t.Position, t.Zoom, t.Layout, s.image.Width, s.image.Height)
	}
	return out, nil
}

func (s *Session) jobsLocked() []cropper.Job {
	base := utils.BaseName(s.image.Name)
	ext := s.cropper.Format().Extension()

	jobs := make([]cropper.Job, 0, len(s.targets))
	for _, t := range s.targets {
		w, h := geometry.OutputSize(t.Width, t.Height, t.Scale)
		jobs = append(jobs, cropper.Job{
			ID:       t.ID,
			Source:   geometry.SourceRect(t.Position, t.Zoom, t.Layout, s.image.Width, s.image.Height),
			Width:    w,
			Height:   h,
			Filename: utils.OutputFilename(base, t.Suffix, w, h, ext),
		})
	}
	return jobs
}

// Crop exports every target. The new results replace the previous ones only
// if every target succeeded; otherwise the previous results stay.
func (s *Session) Crop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return ErrNoImage
	}

	outputs, err := s.cropper.Export(ctx, s.image.Image, s.jobsLocked(), s.quality)
	if err != nil {
		s.log.WithError(err).WithField("name", s.image.Name).Error("crop failed")
		return fmt.Errorf("crop failed: %w", err)
	}

	s.releaseLocked()
	for i, t := range s.targets {
		out := outputs[i]
		t.Result = &out
	}

	s.log.WithFields(logrus.Fields{
		"name":    s.image.Name,
		"targets": len(outputs),
		"quality": s.quality,
	}).Info("crop finished")
	return nil
}

// Results returns the last exported output of each target that has one
func (s *Session) Results() []cropper.Output {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []cropper.Output
	for _, t := range s.targets {
		if t.Result != nil {
			out = append(out, *t.Result)
		}
	}
	return out
}

// Reset drops the image and every result
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()
	s.image = nil
	s.targets = nil
	s.quality = s.opts.Quality
}

func (s *Session) releaseLocked() {
	for _, t := range s.targets {
		if t.Result != nil {
			s.store.Revoke(t.Result.Handle)
			t.Result = nil
		}
	}
}
