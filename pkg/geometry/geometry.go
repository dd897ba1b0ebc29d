// Package geometry holds the coordinate transforms behind interactive
// cropping: fitting a ratio into an image, laying the image out to cover a
// preview container, clamping and zooming the pan position, and mapping the
// final preview state back onto source pixels.
//
// All functions are pure. Positions and sizes are in preview pixels unless a
// name says otherwise.
package geometry

import (
	"image"
	"math"
)

// Point is a top-left offset of the rendered image relative to the container
type Point struct {
	X float64
	Y float64
}

// Size is a width/height pair in preview pixels
type Size struct {
	Width  float64
	Height float64
}

// Scale multiplies both dimensions by f
func (s Size) Scale(f float64) Size {
	return Size{Width: s.Width * f, Height: s.Height * f}
}

// Center returns the midpoint of a box of this size anchored at the origin
func (s Size) Center() Point {
	return Point{X: s.Width / 2, Y: s.Height / 2}
}

// Layout is the cover fit of an image inside a preview container
type Layout struct {
	Container Size
	Image     Size
	// ScaleFactor maps preview distances at zoom 1 to source pixels.
	ScaleFactor float64
}

// FitTarget returns the largest integer size with the given ratio that fits
// inside width x height. Width is tried first; if the resulting height
// overflows, the fit is redone by height.
func FitTarget(width, height int, ratio float64) (int, int) {
	w := float64(width)
	h := w / ratio
	if h > float64(height) {
		h = float64(height)
		w = h * ratio
	}
	return int(math.Floor(w)), int(math.Floor(h))
}

// Cover lays out an imageWidth x imageHeight image inside a container that is
// previewWidth wide and has targetRatio, such that the container is fully
// covered.
func Cover(previewWidth, targetRatio float64, imageWidth, imageHeight int) Layout {
	container := Size{Width: previewWidth, Height: previewWidth / targetRatio}
	imageRatio := float64(imageWidth) / float64(imageHeight)

	var rendered Size
	if imageRatio > targetRatio {
		rendered = Size{Width: container.Height * imageRatio, Height: container.Height}
	} else {
		rendered = Size{Width: container.Width, Height: container.Width / imageRatio}
	}

	return Layout{
		Container:   container,
		Image:       rendered,
		ScaleFactor: float64(imageWidth) / rendered.Width,
	}
}

// ClampPosition keeps an image of size rendered covering the container:
// container-rendered <= p <= 0 on both axes.
func ClampPosition(p Point, container, rendered Size) Point {
	minX := container.Width - rendered.Width
	minY := container.Height - rendered.Height
	return Point{
		X: math.Min(0, math.Max(minX, p.X)),
		Y: math.Min(0, math.Max(minY, p.Y)),
	}
}

// CenterPosition returns the position that centers rendered in the container
func CenterPosition(container, rendered Size) Point {
	return ClampPosition(Point{
		X: (container.Width - rendered.Width) / 2,
		Y: (container.Height - rendered.Height) / 2,
	}, container, rendered)
}

// ZoomPosition moves p so that the image point under the container center
// stays there when the zoom goes from oldZoom to newZoom. base is the cover
// size at zoom 1.
func ZoomPosition(p Point, oldZoom, newZoom float64, container, base Size) Point {
	center := container.Center()
	ratio := newZoom / oldZoom

	offsetX := (center.X - p.X) * ratio
	offsetY := (center.Y - p.Y) * ratio

	return ClampPosition(Point{
		X: center.X - offsetX,
		Y: center.Y - offsetY,
	}, container, base.Scale(newZoom))
}

// FocusPosition places the normalized image point (fx, fy) at the container
// center, as far as clamping allows.
func FocusPosition(fx, fy float64, container, rendered Size) Point {
	center := container.Center()
	return ClampPosition(Point{
		X: center.X - fx*rendered.Width,
		Y: center.Y - fy*rendered.Height,
	}, container, rendered)
}

// OutputSize multiplies a target size by scale, rounding to whole pixels
func OutputSize(width, height int, scale float64) (int, int) {
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(w, 1), max(h, 1)
}

// SourceRect maps the visible container area at position p and zoom back
// onto the imageWidth x imageHeight source image.
func SourceRect(p Point, zoom float64, layout Layout, imageWidth, imageHeight int) image.Rectangle {
	f := float64(imageWidth) / (layout.Image.Width * zoom)

	x := int(math.Round(math.Abs(p.X) * f))
	y := int(math.Round(math.Abs(p.Y) * f))
	w := int(math.Round(layout.Container.Width * f))
	h := int(math.Round(layout.Container.Height * f))

	// rounding may overshoot the far edge by a pixel
	return image.Rect(x, y, x+w, y+h).Intersect(image.Rect(0, 0, imageWidth, imageHeight))
}
