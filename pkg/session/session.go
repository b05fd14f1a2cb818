// Package session holds the interactive state of one square crop edit: zoom
// scale, pan offset and the aspect-fit display geometry of the source image.
//
// A Session is driven by gesture callbacks from a single dispatch context and
// never blocks. Every input is clamped instead of rejected, so once a Session
// exists none of its operations can fail. Session values may be copied; the
// copy is an independent snapshot.
package session

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/menta2k/pawcrop/pkg/types"
)

// DefaultMaxScale is the zoom ceiling used when no option overrides it
const DefaultMaxScale = 5.0

// ErrInvalidGeometry is returned when a session is built from non-positive sizes
var ErrInvalidGeometry = errors.New("invalid crop geometry")

// Session is the state of one crop interaction
type Session struct {
	maxScale float64

	source  types.Size
	display types.Size

	scale     float64
	baseScale float64

	offset          types.Vector
	committedOffset types.Vector
}

// Option configures a Session
type Option func(*Session)

// WithMaxScale sets the zoom ceiling. Values below 1 are raised to 1. NaN
// and infinite values are ignored and the default ceiling stays.
func WithMaxScale(maxScale float64) Option {
	return func(s *Session) {
		if math.IsNaN(maxScale) || math.IsInf(maxScale, 0) {
			return
		}
		s.maxScale = math.Max(1, maxScale)
	}
}

// New creates a session for a decoded source image shown inside container.
func New(source, container types.Size, opts ...Option) (*Session, error) {
	if !source.Positive() {
		return nil, fmt.Errorf("%w: source %gx%g", ErrInvalidGeometry, source.Width, source.Height)
	}
	if !container.Positive() {
		return nil, fmt.Errorf("%w: container %gx%g", ErrInvalidGeometry, container.Width, container.Height)
	}

	s := &Session{
		maxScale:  DefaultMaxScale,
		source:    source,
		scale:     1,
		baseScale: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.display = FitDisplaySize(source, container)
	return s, nil
}

// FitDisplaySize returns the size at which source is drawn inside container
// when aspect-fit. A source wider than the container derives its height from
// the container width, anything else derives its width from the container
// height. Non-positive inputs yield a zero size.
func FitDisplaySize(source, container types.Size) types.Size {
	if !source.Positive() || !container.Positive() {
		return types.Size{}
	}
	aspect := source.Aspect()
	if aspect > container.Aspect() {
		return types.Size{Width: container.Width, Height: container.Width / aspect}
	}
	return types.Size{Width: container.Height * aspect, Height: container.Height}
}

// Fit recomputes the display size after a container change and returns it.
// An invalid container leaves the current geometry in place.
func (s *Session) Fit(container types.Size) types.Size {
	if display := FitDisplaySize(s.source, container); display.Positive() {
		s.display = display
		s.offset = s.clampOffset(s.offset)
		s.committedOffset = s.clampOffset(s.committedOffset)
	}
	return s.display
}

// ApplyZoom applies the magnification of an in-progress pinch. pinch is
// relative to the start of the gesture, so repeated calls with the same value
// give the same scale.
func (s *Session) ApplyZoom(pinch float64) {
	s.scale = types.Clamp(s.baseScale*pinch, 1, s.maxScale)
	s.offset = s.clampOffset(s.offset)
	s.committedOffset = s.clampOffset(s.committedOffset)
}

// EndZoom makes the current scale the baseline for the next pinch.
func (s *Session) EndZoom() {
	s.baseScale = s.scale
}

// ApplyPan applies the cumulative translation of an in-progress drag.
func (s *Session) ApplyPan(translation types.Vector) {
	s.offset = s.clampOffset(s.committedOffset.Add(translation))
}

// CommitPan makes the current offset the baseline for the next drag.
func (s *Session) CommitPan() {
	s.committedOffset = s.offset
}

// Reset returns to the unzoomed, centered view.
func (s *Session) Reset() {
	s.scale = 1
	s.baseScale = 1
	s.offset = types.Vector{}
	s.committedOffset = types.Vector{}
}

// MaxOffset returns the pan bound per axis for the current scale. Panning
// further would reveal empty space past the image edge.
func (s *Session) MaxOffset() types.Vector {
	return types.Vector{
		X: math.Max(0, (s.display.Width*s.scale-s.display.Width)/2),
		Y: math.Max(0, (s.display.Height*s.scale-s.display.Height)/2),
	}
}

func (s *Session) clampOffset(v types.Vector) types.Vector {
	limit := s.MaxOffset()
	return types.Vector{
		X: types.Clamp(v.X, -limit.X, limit.X),
		Y: types.Clamp(v.Y, -limit.Y, limit.Y),
	}
}

// ViewportSize is the side of the square crop viewport in display units
func (s *Session) ViewportSize() float64 {
	return s.display.Min()
}

// CropRect returns the crop viewport mapped back to unzoomed display
// coordinates. It is not clamped and may extend past the image.
func (s *Session) CropRect() types.Rect {
	side := s.ViewportSize()
	return types.Rect{
		X:      (s.display.Width-side)/2 - s.offset.X/s.scale,
		Y:      (s.display.Height-side)/2 - s.offset.Y/s.scale,
		Width:  side / s.scale,
		Height: side / s.scale,
	}
}

// CommitCrop derives the normalized crop for the current view. The result
// always satisfies CropData.Valid.
func (s *Session) CommitCrop() types.CropData {
	r := s.CropRect()
	return types.CropData{
		X:      r.X / s.display.Width,
		Y:      r.Y / s.display.Height,
		Width:  r.Width / s.display.Width,
		Height: r.Height / s.display.Height,
		Scale:  s.scale,
	}.Clamp()
}

// SourceRect is the pixel rectangle of the committed crop in the source raster
func (s *Session) SourceRect() image.Rectangle {
	return s.CommitCrop().PixelRect(s.source)
}

// RestoreFromCropData seeds the view from a stored crop. The scale is copied
// and the offset is taken as the negated crop origin in display units. This
// does not invert CommitCrop exactly; see RestoreExact.
func (s *Session) RestoreFromCropData(crop types.CropData) {
	s.scale = types.Clamp(crop.Scale, 1, s.maxScale)
	s.baseScale = s.scale
	s.offset = s.clampOffset(types.Vector{
		X: -crop.X * s.display.Width,
		Y: -crop.Y * s.display.Height,
	})
	s.committedOffset = s.offset
}

// RestoreExact seeds the view so that an immediate CommitCrop returns crop
// again, whenever crop is reachable from this geometry. Unreachable origins
// land on the nearest pan bound.
func (s *Session) RestoreExact(crop types.CropData) {
	s.scale = types.Clamp(crop.Scale, 1, s.maxScale)
	s.baseScale = s.scale
	side := s.ViewportSize()
	s.offset = s.clampOffset(types.Vector{
		X: s.scale * ((s.display.Width-side)/2 - crop.X*s.display.Width),
		Y: s.scale * ((s.display.Height-side)/2 - crop.Y*s.display.Height),
	})
	s.committedOffset = s.offset
}

// State is a read-only snapshot for the rendering layer
type State struct {
	Scale           float64      `json:"scale"`
	MaxScale        float64      `json:"max_scale"`
	Offset          types.Vector `json:"offset"`
	CommittedOffset types.Vector `json:"committed_offset"`
	Display         types.Size   `json:"display"`
	Source          types.Size   `json:"source"`
	Viewport        float64      `json:"viewport"`
}

// State returns the current view transform and geometry
func (s *Session) State() State {
	return State{
		Scale:           s.scale,
		MaxScale:        s.maxScale,
		Offset:          s.offset,
		CommittedOffset: s.committedOffset,
		Display:         s.display,
		Source:          s.source,
		Viewport:        s.ViewportSize(),
	}
}

// Scale returns the current zoom factor
func (s *Session) Scale() float64 { return s.scale }

// Offset returns the current pan offset
func (s *Session) Offset() types.Vector { return s.offset }

// DisplaySize returns the aspect-fit size of the source in display units
func (s *Session) DisplaySize() types.Size { return s.display }
