// Package source loads the photo a crop session is built on. A load either
// yields a decoded image with positive dimensions or fails with ErrLoadFailed;
// callers never build a session for a failed load.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/menta2k/pawcrop/internal/utils"
	"github.com/menta2k/pawcrop/pkg/processing"
	"github.com/menta2k/pawcrop/pkg/types"
)

var (
	// ErrLoadFailed wraps any fetch or decode failure
	ErrLoadFailed = errors.New("image load failed")
	// ErrTooSmall is returned for photos below the configured minimum side
	ErrTooSmall = errors.New("image too small")
)

// Config holds loader settings
type Config struct {
	SupportedFormats []string
	MinImageSize     int
}

// DefaultConfig accepts jpg, png and webp of at least 64px per side
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
		MinImageSize:     64,
	}
}

// Image is a decoded photo ready for editing
type Image struct {
	Location string
	Image    image.Image
	Size     types.Size
}

// Info describes the photo
func (i *Image) Info() Info {
	return InfoOf(i.Image)
}

// Info contains basic image metadata
type Info struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// InfoOf returns basic information about an image
func InfoOf(img image.Image) Info {
	b := img.Bounds()
	return Info{
		Width:       b.Dx(),
		Height:      b.Dy(),
		AspectRatio: float64(b.Dx()) / float64(b.Dy()),
		Area:        b.Dx() * b.Dy(),
	}
}

// Loader fetches and validates photos
type Loader struct {
	config    Config
	processor *processing.Processor
}

// NewLoader creates a loader backed by p
func NewLoader(config Config, p *processing.Processor) *Loader {
	return &Loader{config: config, processor: p}
}

// Load fetches a photo from a path or URL and validates it
func (l *Loader) Load(ctx context.Context, location string) (*Image, error) {
	if !isRemote(location) && !l.isFormatSupported(utils.GetFileExtension(location)) {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrLoadFailed, utils.GetFileExtension(location))
	}

	img, err := l.processor.LoadImageSmart(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return l.Wrap(location, img)
}

// Wrap validates an already decoded image
func (l *Loader) Wrap(location string, img image.Image) (*Image, error) {
	if err := l.Validate(img); err != nil {
		return nil, err
	}
	return &Image{Location: location, Image: img, Size: types.SizeOf(img)}, nil
}

// Validate checks the minimum side length
func (l *Loader) Validate(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < l.config.MinImageSize || b.Dy() < l.config.MinImageSize {
		return fmt.Errorf("%w: %dx%d (minimum: %d)", ErrTooSmall, b.Dx(), b.Dy(), l.config.MinImageSize)
	}
	return nil
}

func (l *Loader) isFormatSupported(format string) bool {
	for _, supported := range l.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
