// Package focus finds the point of an image a crop should be centered on.
// Points are normalized to [0,1] relative to the image bounds.
package focus

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"

	"github.com/menta2k/crop-studio/pkg/geometry"
)

// SmartFinder picks the focus from a content-aware crop analysis
type SmartFinder struct {
	resampler imaging.ResampleFilter
}

// NewSmartFinder creates a SmartFinder using Lanczos resampling
func NewSmartFinder() *SmartFinder {
	return &SmartFinder{resampler: imaging.Lanczos}
}

// FindFocus returns the center of the best crop with the given ratio
func (f *SmartFinder) FindFocus(ctx context.Context, img image.Image, ratio float64) (float64, float64, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0, 0, fmt.Errorf("empty image")
	}

	w, h := geometry.FitTarget(bounds.Dx(), bounds.Dy(), ratio)
	w, h = max(w, 1), max(h, 1)

	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: f.resampler})

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	// buffered so the analysis goroutine can finish after a cancel
	resultChan := make(chan cropResult, 1)

	go func() {
		crop, err := analyzer.FindBestCrop(img, w, h)
		resultChan <- cropResult{crop: crop, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return 0, 0, fmt.Errorf("finding best crop: %w", result.err)
		}
		return rectCenter(result.crop, bounds)
	}
}

func rectCenter(crop, bounds image.Rectangle) (float64, float64, error) {
	crop = crop.Intersect(bounds)
	if crop.Empty() {
		return 0.5, 0.5, nil
	}
	cx := float64(crop.Min.X-bounds.Min.X) + float64(crop.Dx())/2
	cy := float64(crop.Min.Y-bounds.Min.Y) + float64(crop.Dy())/2
	return cx / float64(bounds.Dx()), cy / float64(bounds.Dy()), nil
}

// resizer implements the smartcrop.Resizer interface
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}
