package types

import "image"

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the normalized center of the box
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the subject reported by a vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// CropPreset is a static crop definition. BaseWidth/BaseHeight only define
// the aspect ratio; the concrete size is fitted per image.
type CropPreset struct {
	ID         string `json:"id" mapstructure:"id"`
	Label      string `json:"label" mapstructure:"label"`
	BaseWidth  int    `json:"base_width" mapstructure:"base_width"`
	BaseHeight int    `json:"base_height" mapstructure:"base_height"`
	Suffix     string `json:"suffix" mapstructure:"suffix"`
}

// Ratio returns BaseWidth/BaseHeight
func (p CropPreset) Ratio() float64 {
	return float64(p.BaseWidth) / float64(p.BaseHeight)
}

// CropTarget is a preset fitted to the currently loaded image
type CropTarget struct {
	ID     string
	Label  string
	Suffix string
	Width  int
	Height int
}

// Ratio returns Width/Height
func (t CropTarget) Ratio() float64 {
	return float64(t.Width) / float64(t.Height)
}

// Upload is an image file handed in by the user
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImageDescriptor describes a decoded upload. It is never mutated; a new
// upload replaces it.
type ImageDescriptor struct {
	Name   string
	Format string
	Size   int64
	Width  int
	Height int
	Image  image.Image
}
