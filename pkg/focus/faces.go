package focus

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/crop-studio/pkg/types"
)

// FaceConfig tunes the cascade run
type FaceConfig struct {
	MinSize      int     // smallest face side in px
	MaxSize      int     // largest face side in px, 0 = longest image side
	ShiftFactor  float64 // sliding window step relative to the window
	ScaleFactor  float64 // window growth per scale
	IoUThreshold float64 // overlap above which detections are merged
	MinQuality   float32 // detections below this score are ignored
}

// DefaultFaceConfig returns the settings used by NewFaceFinder
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		MinSize:      20,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5,
	}
}

// Finder locates the normalized point of interest of an image
type Finder interface {
	FindFocus(ctx context.Context, img image.Image, ratio float64) (float64, float64, error)
}

// FaceFinder centers crops on detected faces. Images without a usable face
// are handed to the fallback finder.
type FaceFinder struct {
	config   FaceConfig
	detect   func(img image.Image) []pigo.Detection
	fallback Finder
}

// NewFaceFinder unpacks a pigo face cascade (e.g. the "facefinder" file
// shipped with pigo). Without faces the SmartFinder decides.
func NewFaceFinder(cascade []byte, config FaceConfig) (*FaceFinder, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face cascade: %w", err)
	}

	f := &FaceFinder{config: config, fallback: NewSmartFinder()}
	f.detect = func(img image.Image) []pigo.Detection {
		return runCascade(classifier, img, f.config)
	}
	return f, nil
}

// NewFaceFinderFromFile reads the cascade from path
func NewFaceFinderFromFile(path string, config FaceConfig) (*FaceFinder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read face cascade: %w", err)
	}
	return NewFaceFinder(data, config)
}

func runCascade(classifier *pigo.Pigo, img image.Image, config FaceConfig) []pigo.Detection {
	b := img.Bounds()
	cols, rows := b.Dx(), b.Dy()

	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = max(cols, rows)
	}

	params := pigo.CascadeParams{
		MinSize:     config.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: config.ShiftFactor,
		ScaleFactor: config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := classifier.RunCascade(params, 0)
	return classifier.ClusterDetections(dets, config.IoUThreshold)
}

// FindFocus returns the center of the box spanning every detected face. The
// ratio only matters to the fallback.
func (f *FaceFinder) FindFocus(ctx context.Context, img image.Image, ratio float64) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return 0, 0, fmt.Errorf("empty image")
	}

	if box, ok := facesBox(f.detect(img), bounds, f.config.MinQuality); ok {
		cx, cy := box.Center()
		return cx, cy, nil
	}

	return f.fallback.FindFocus(ctx, img, ratio)
}

// facesBox returns the normalized box spanning every face scoring at least
// minQ, or false when there is none.
func facesBox(dets []pigo.Detection, bounds image.Rectangle, minQ float32) (types.Box, bool) {
	var area image.Rectangle
	for _, d := range dets {
		if d.Q < minQ || d.Scale <= 0 {
			continue
		}
		half := d.Scale / 2
		face := image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half)
		if area.Empty() {
			area = face
		} else {
			area = area.Union(face)
		}
	}

	area = area.Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if area.Empty() {
		return types.Box{}, false
	}

	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	return normalizeBox(types.Box{
		X: float64(area.Min.X) / w,
		Y: float64(area.Min.Y) / h,
		W: float64(area.Dx()) / w,
		H: float64(area.Dy()) / h,
	}), true
}
