package loader

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen2brain/avif"

	"github.com/menta2k/crop-studio/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return img
}

func createUpload(t *testing.T, width, height int) types.Upload {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, createTestImage(width, height)); err != nil {
		t.Fatal(err)
	}
	return types.Upload{Name: "photo.png", ContentType: "image/png", Data: buf.Bytes()}
}

func TestNew(t *testing.T) {
	loader := New()
	if loader == nil {
		t.Fatal("New() returned nil")
	}

	if loader.config.MinImageSize != 1 {
		t.Errorf("Expected min image size 1, got %d", loader.config.MinImageSize)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := Config{
		SupportedFormats: []string{"png"},
		MinImageSize:     200,
	}

	loader := NewWithConfig(cfg)
	if loader == nil {
		t.Fatal("NewWithConfig() returned nil")
	}

	if loader.config.MinImageSize != 200 {
		t.Errorf("Expected min size 200, got %d", loader.config.MinImageSize)
	}
}

func TestLoad(t *testing.T) {
	loader := New()
	upload := createUpload(t, 400, 300)

	desc, err := loader.Load(upload)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if desc.Width != 400 || desc.Height != 300 {
		t.Errorf("Expected 400x300, got %dx%d", desc.Width, desc.Height)
	}
	if desc.Size != int64(len(upload.Data)) {
		t.Errorf("Expected size %d, got %d", len(upload.Data), desc.Size)
	}
	if desc.Format != "png" {
		t.Errorf("Expected format png, got %s", desc.Format)
	}
	if desc.Name != "photo.png" {
		t.Errorf("Expected name photo.png, got %s", desc.Name)
	}
}

func TestLoadRejectsNonImage(t *testing.T) {
	loader := New()
	upload := createUpload(t, 10, 10)
	upload.ContentType = "application/pdf"

	_, err := loader.Load(upload)
	if !errors.Is(err, ErrNotImage) {
		t.Errorf("Expected ErrNotImage, got %v", err)
	}
}

func TestIsImageSniffsMissingType(t *testing.T) {
	loader := New()

	upload := createUpload(t, 10, 10)
	upload.ContentType = ""
	if !loader.IsImage(upload) {
		t.Error("PNG bytes without a declared type should be detected as an image")
	}

	text := types.Upload{Name: "notes.txt", Data: []byte("hello world")}
	if loader.IsImage(text) {
		t.Error("Plain text should not be detected as an image")
	}
}

func TestLoadDecodeFailure(t *testing.T) {
	loader := New()
	upload := types.Upload{Name: "broken.jpg", ContentType: "image/jpeg", Data: []byte("garbage")}

	_, err := loader.Load(upload)
	if err == nil {
		t.Fatal("Expected decode error")
	}
	if errors.Is(err, ErrNotImage) {
		t.Error("Decode failure should not be reported as ErrNotImage")
	}
}

func TestLoadAVIF(t *testing.T) {
	var buf bytes.Buffer
	if err := avif.Encode(&buf, createTestImage(48, 32)); err != nil {
		t.Fatalf("Failed to encode AVIF: %v", err)
	}

	desc, err := New().Load(types.Upload{Name: "photo.avif", ContentType: "image/avif", Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if desc.Format != "avif" {
		t.Errorf("Expected format avif, got %s", desc.Format)
	}
	if desc.Width != 48 || desc.Height != 32 {
		t.Errorf("Expected 48x32, got %dx%d", desc.Width, desc.Height)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	loader := NewWithConfig(Config{SupportedFormats: []string{"jpeg"}, MinImageSize: 1})

	if _, err := loader.Load(createUpload(t, 10, 10)); err == nil {
		t.Error("PNG should be rejected when only jpeg is supported")
	}
}

func TestReadFile(t *testing.T) {
	loader := New()
	upload := createUpload(t, 20, 20)
	path := filepath.Join(t.TempDir(), "pic.png")
	if err := os.WriteFile(path, upload.Data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := loader.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got.Name != "pic.png" {
		t.Errorf("Expected name pic.png, got %s", got.Name)
	}
	if got.ContentType != "image/png" {
		t.Errorf("Expected image/png, got %s", got.ContentType)
	}
}

func TestGetImageInfo(t *testing.T) {
	loader := New()
	img := createTestImage(400, 300)

	info := loader.GetImageInfo(img)

	if info.Width != 400 {
		t.Errorf("Expected width 400, got %d", info.Width)
	}

	if info.Height != 300 {
		t.Errorf("Expected height 300, got %d", info.Height)
	}

	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}

	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}
}

func TestValidateImage(t *testing.T) {
	loader := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 100})

	if err := loader.ValidateImage(createTestImage(200, 200)); err != nil {
		t.Errorf("Valid image should pass validation: %v", err)
	}

	if err := loader.ValidateImage(createTestImage(50, 50)); err == nil {
		t.Error("Small image should fail validation")
	}
}

func TestIsFormatSupported(t *testing.T) {
	loader := New()

	for _, format := range []string{"jpeg", "png", "webp", "GIF", "PNG"} {
		if !loader.isFormatSupported(format) {
			t.Errorf("Format %s should be supported", format)
		}
	}

	for _, format := range []string{"bmp", "tiff"} {
		if loader.isFormatSupported(format) {
			t.Errorf("Format %s should not be supported", format)
		}
	}
}

func BenchmarkGetImageInfo(b *testing.B) {
	loader := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		loader.GetImageInfo(img)
	}
}
