package loader

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/menta2k/crop-studio/pkg/processing"
	"github.com/menta2k/crop-studio/pkg/types"
)

// ErrNotImage is returned for uploads whose content type is not image/*
var ErrNotImage = errors.New("upload is not an image")

// Loader turns uploads into image descriptors
type Loader struct {
	config    Config
	processor *processing.Processor
}

// Config holds configuration for the loader
type Config struct {
	SupportedFormats []string
	MinImageSize     int
}

// New creates a new Loader with default configuration
func New() *Loader {
	return NewWithConfig(Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp", "avif"},
		MinImageSize:     1,
	})
}

// NewWithConfig creates a new Loader with custom configuration
func NewWithConfig(config Config) *Loader {
	return &Loader{config: config, processor: processing.NewProcessor()}
}

// IsImage reports whether the upload declares an image type. An empty
// declared type is sniffed from the content.
func (l *Loader) IsImage(u types.Upload) bool {
	contentType := u.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(u.Data).String()
	}
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}

// Load decodes an upload. Non-image uploads fail with ErrNotImage before any
// decoding is attempted.
func (l *Loader) Load(u types.Upload) (*types.ImageDescriptor, error) {
	if !l.IsImage(u) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotImage, u.Name, u.ContentType)
	}

	img, format, err := l.processor.Decode(u.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", u.Name, err)
	}

	if !l.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	if err := l.ValidateImage(img); err != nil {
		return nil, err
	}

	info := l.GetImageInfo(img)
	return &types.ImageDescriptor{
		Name:   u.Name,
		Format: format,
		Size:   int64(len(u.Data)),
		Width:  info.Width,
		Height: info.Height,
		Image:  img,
	}, nil
}

// ReadFile builds an upload from a file on disk, sniffing its content type
func (l *Loader) ReadFile(path string) (types.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Upload{}, fmt.Errorf("failed to open image file: %w", err)
	}

	return types.Upload{
		Name:        filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// GetImageInfo returns basic information about an image
func (l *Loader) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Area:        width * height,
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

func (l *Loader) isFormatSupported(format string) bool {
	for _, supported := range l.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (l *Loader) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < l.config.MinImageSize || bounds.Dy() < l.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), l.config.MinImageSize)
	}
	return nil
}
