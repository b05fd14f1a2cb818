// Package cropper applies committed crops to the source raster and renders
// the square outputs a memorial page needs.
package cropper

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/pawcrop/pkg/types"
)

// Renderer crops and resizes photos
type Renderer struct {
	config Config
}

// Config holds configuration for rendering
type Config struct {
	AllowUpscaling bool
	Filter         imaging.ResampleFilter
	// Concurrency bounds parallel renders; zero means one per size
	Concurrency int
}

// New creates a Renderer with default configuration
func New() *Renderer {
	return &Renderer{
		config: Config{
			AllowUpscaling: false,
			Filter:         imaging.Lanczos,
		},
	}
}

// NewWithConfig creates a Renderer with custom configuration
func NewWithConfig(config Config) *Renderer {
	if config.Filter.Kernel == nil && config.Filter.Support == 0 {
		config.Filter = imaging.Lanczos
	}
	return &Renderer{config: config}
}

// Output is one rendered square
type Output struct {
	Size  int
	Image image.Image
}

// Crop cuts the region described by crop out of img
func (r *Renderer) Crop(img image.Image, crop types.CropData) (*image.NRGBA, error) {
	bounds := img.Bounds()
	rect := crop.Clamp().PixelRect(types.SizeOf(img)).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop rectangle for %v", crop)
	}
	return imaging.Crop(img, rect), nil
}

// Render crops img once and produces one square image per requested size,
// largest first. Without upscaling a size larger than the crop is rendered
// at the crop's own side length.
func (r *Renderer) Render(ctx context.Context, img image.Image, crop types.CropData, sizes []int) ([]Output, error) {
	for _, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("invalid output size %d", size)
		}
	}
	cropped, err := r.Crop(img, crop)
	if err != nil {
		return nil, err
	}

	sizes = append([]int(nil), sizes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))

	side := min(cropped.Bounds().Dx(), cropped.Bounds().Dy())
	outputs := make([]Output, len(sizes))

	g, ctx := errgroup.WithContext(ctx)
	if r.config.Concurrency > 0 {
		g.SetLimit(r.config.Concurrency)
	}
	for i, size := range sizes {
		target := size
		if !r.config.AllowUpscaling && target > side {
			target = side
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outputs[i] = Output{
				Size:  size,
				Image: imaging.Fill(cropped, target, target, imaging.Center, r.config.Filter),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}
