package cropper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/crop-studio/pkg/blob"
	"github.com/menta2k/crop-studio/pkg/processing"
)

var (
	// ErrSurface means no drawable output could be produced for a target
	ErrSurface = errors.New("cannot acquire output surface")
	// ErrEncode means the rendered output could not be compressed
	ErrEncode = errors.New("cannot encode output")
)

// Renderer samples and encodes image regions
type Renderer interface {
	Render(img image.Image, src image.Rectangle, width, height int) (image.Image, error)
	Encode(w io.Writer, img image.Image, format processing.Format, quality float64) error
}

// CropConfig holds configuration for exporting
type CropConfig struct {
	Format processing.Format
	// Concurrency caps parallel encodes; 0 means one goroutine per job.
	Concurrency int
}

// Job is one target to export: Source in original pixels, resampled to
// Width x Height.
type Job struct {
	ID       string
	Source   image.Rectangle
	Width    int
	Height   int
	Filename string
}

// Output is an encoded crop held in the blob store
type Output struct {
	ID          string
	Handle      blob.Handle
	Data        []byte
	Width       int
	Height      int
	Filename    string
	ContentType string
}

// Size returns the encoded size in bytes
func (o Output) Size() int {
	return len(o.Data)
}

// Cropper renders and encodes crop jobs as one batch
type Cropper struct {
	renderer Renderer
	store    *blob.Store
	config   CropConfig
	log      logrus.FieldLogger
}

// New creates a Cropper writing JPEG into store
func New(store *blob.Store) *Cropper {
	return NewWithConfig(CropConfig{Format: processing.JPEG}, processing.NewProcessor(), store, logrus.StandardLogger())
}

// NewWithConfig creates a Cropper with a custom renderer and configuration
func NewWithConfig(config CropConfig, renderer Renderer, store *blob.Store, log logrus.FieldLogger) *Cropper {
	if config.Format == "" {
		config.Format = processing.JPEG
	}
	return &Cropper{
		renderer: renderer,
		store:    store,
		config:   config,
		log:      log,
	}
}

// Format returns the configured output format
func (c *Cropper) Format() processing.Format {
	return c.config.Format
}

// Export renders every job concurrently. Either every job yields an Output
// or none does: on the first failure the rest are cancelled and any blobs
// already produced are revoked.
func (c *Cropper) Export(ctx context.Context, img image.Image, jobs []Job, quality float64) ([]Output, error) {
	outputs := make([]Output, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if c.config.Concurrency > 0 {
		g.SetLimit(c.config.Concurrency)
	}

	for i, job := range jobs {
		g.Go(func() error {
			out, err := c.exportOne(gctx, img, job, quality)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, out := range outputs {
			if out.Handle != "" {
				c.store.Revoke(out.Handle)
			}
		}
		return nil, err
	}

	return outputs, nil
}

func (c *Cropper) exportOne(ctx context.Context, img image.Image, job Job, quality float64) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	log := c.log.WithFields(logrus.Fields{
		"target": job.ID,
		"source": job.Source,
		"width":  job.Width,
		"height": job.Height,
	})

	rendered, err := c.renderer.Render(img, job.Source, job.Width, job.Height)
	if err != nil {
		return Output{}, fmt.Errorf("%w for %s: %v", ErrSurface, job.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	var buf bytes.Buffer
	if err := c.renderer.Encode(&buf, rendered, c.config.Format, quality); err != nil {
		return Output{}, fmt.Errorf("%w for %s: %v", ErrEncode, job.ID, err)
	}
	if buf.Len() == 0 {
		return Output{}, fmt.Errorf("%w for %s: empty output", ErrEncode, job.ID)
	}

	data := buf.Bytes()
	handle := c.store.Put(data)
	log.WithField("bytes", len(data)).Debug("crop encoded")

	return Output{
		ID:          job.ID,
		Handle:      handle,
		Data:        data,
		Width:       job.Width,
		Height:      job.Height,
		Filename:    job.Filename,
		ContentType: c.config.Format.ContentType(),
	}, nil
}
