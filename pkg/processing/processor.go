package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "github.com/gen2brain/avif" // AVIF support
	_ "golang.org/x/image/webp"   // WEBP support
)

// Format is a lossy output encoding
type Format string

const (
	JPEG Format = "jpg"
	WebP Format = "webp"
)

// ParseFormat accepts jpg, jpeg and webp in any case
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Extension returns the file extension without a dot
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type of the encoding
func (f Format) ContentType() string {
	if f == WebP {
		return "image/webp"
	}
	return "image/jpeg"
}

// ErrEmptyRegion is returned when a render would produce no pixels
var ErrEmptyRegion = errors.New("empty render region")

// Processor handles image processing operations
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Decode decodes JPEG, PNG, GIF, WebP or AVIF data and reports the format
// name.
// EXIF orientation is applied so the natural size matches what a viewer
// shows.
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// chai2010 handles a few WebP variants the x/image decoder rejects
		if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			return img, "webp", nil
		}
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	return img, format, nil
}

// LoadImage reads and decodes an image file
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := p.Decode(data)
	return img, err
}

// Render samples src from img and resamples it to width x height
func (p *Processor) Render(img image.Image, src image.Rectangle, width, height int) (image.Image, error) {
	src = src.Add(img.Bounds().Min).Intersect(img.Bounds())
	if src.Empty() || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %v -> %dx%d", ErrEmptyRegion, src, width, height)
	}

	region := imaging.Crop(img, src)
	if region.Bounds().Dx() == width && region.Bounds().Dy() == height {
		return region, nil
	}
	return imaging.Resize(region, width, height, imaging.Lanczos), nil
}

// Encode writes img in format at quality (0.1..1.0)
func (p *Processor) Encode(w io.Writer, img image.Image, format Format, quality float64) error {
	q := int(math.Round(quality * 100))
	switch format {
	case WebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(q)})
	case JPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(q))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// EncodeBytes is Encode into a fresh buffer
func (p *Processor) EncodeBytes(img image.Image, format Format, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateDebugOverlay outlines every source rectangle on a copy of img
func (p *Processor) CreateDebugOverlay(img image.Image, regions []image.Rectangle) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	palette := []color.NRGBA{
		{255, 204, 0, 255},
		{0, 255, 0, 255},
		{0, 170, 255, 255},
		{255, 0, 0, 255},
	}
	stroke := int(math.Max(2, 0.004*float64(min(w, h)))) // ~0.4% of min side

	for i, r := range regions {
		drawRect(nrgba, r.Sub(img.Bounds().Min), palette[i%len(palette)], stroke)
	}

	// image center marker
	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, palette[3])
	drawVLine(nrgba, ix, iy-6, iy+6, palette[3])

	return nrgba
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
