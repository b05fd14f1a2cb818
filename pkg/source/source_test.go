package source

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/pawcrop/pkg/processing"
	"github.com/menta2k/pawcrop/pkg/types"
)

// createTestImage fills a gradient
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8((x * 255) / width), uint8((y * 255) / height), 128, 255})
		}
	}
	return img
}

func newLoader() *Loader {
	return NewLoader(DefaultConfig(), processing.NewProcessor(0))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "biscuit.png")
	require.NoError(t, processing.NewProcessor(0).SaveImage(createTestImage(300, 200), path, "png", 0, false))

	img, err := newLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, types.Size{Width: 300, Height: 200}, img.Size)
	assert.Equal(t, path, img.Location)
	assert.InDelta(t, 1.5, img.Info().AspectRatio, 1e-12)
	assert.Equal(t, 60000, img.Info().Area)
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.jpg")
	require.NoError(t, os.WriteFile(corrupt, []byte("garbage"), 0o644))

	tiny := filepath.Join(dir, "tiny.png")
	require.NoError(t, processing.NewProcessor(0).SaveImage(createTestImage(10, 10), tiny, "png", 0, false))

	l := newLoader()
	ctx := context.Background()

	_, err := l.Load(ctx, filepath.Join(dir, "missing.jpg"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = l.Load(ctx, corrupt)
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = l.Load(ctx, filepath.Join(dir, "clip.gif"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = l.Load(ctx, tiny)
	assert.ErrorIs(t, err, ErrTooSmall)
}

func TestIsFormatSupported(t *testing.T) {
	l := newLoader()
	for _, format := range []string{"jpg", "JPEG", "png", "webp"} {
		assert.True(t, l.isFormatSupported(format), format)
	}
	for _, format := range []string{"gif", "bmp", ""} {
		assert.False(t, l.isFormatSupported(format), format)
	}
}
