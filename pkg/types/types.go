package types

import (
	"image"
	"math"
)

// Size is a width/height pair in display units or pixels
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Positive reports whether both dimensions are finite and greater than zero
func (s Size) Positive() bool {
	return s.Width > 0 && s.Height > 0 && !math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// Aspect returns width divided by height
func (s Size) Aspect() float64 {
	return s.Width / s.Height
}

// Min returns the narrower dimension
func (s Size) Min() float64 {
	return math.Min(s.Width, s.Height)
}

// SizeOf returns the pixel dimensions of an image
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Vector is a translation in display units
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns v+o
func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y}
}

// Rect is an axis-aligned rectangle with a top-left origin
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the center point of the box
func (b Box) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// CropData is a committed crop: a rectangle normalized to the source image
// plus the zoom factor that produced it.
type CropData struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Scale  float64 `json:"scale" yaml:"scale"`
}

// FullFrame is the crop covering the whole image at no zoom
var FullFrame = CropData{X: 0, Y: 0, Width: 1, Height: 1, Scale: 1}

// Valid reports whether every field lies in its range and the rectangle stays
// inside the unit square.
func (c CropData) Valid() bool {
	const eps = 1e-9
	in01 := func(v float64) bool { return v >= 0 && v <= 1 }
	return in01(c.X) && in01(c.Y) && in01(c.Width) && in01(c.Height) &&
		c.X+c.Width <= 1+eps && c.Y+c.Height <= 1+eps &&
		c.Scale >= 1
}

// Clamp forces the rectangle into the unit square as a whole: size first,
// then position so that x+width and y+height never exceed 1.
func (c CropData) Clamp() CropData {
	c.Width = Clamp(c.Width, 0, 1)
	c.Height = Clamp(c.Height, 0, 1)
	c.X = Clamp(c.X, 0, 1-c.Width)
	c.Y = Clamp(c.Y, 0, 1-c.Height)
	if math.IsNaN(c.Scale) || c.Scale < 1 {
		c.Scale = 1
	}
	return c
}

// Box returns the crop rectangle as a normalized box
func (c CropData) Box() Box {
	return Box{X: c.X, Y: c.Y, W: c.Width, H: c.Height}
}

// PixelRect maps the normalized rectangle onto a source raster of the given size.
func (c CropData) PixelRect(source Size) image.Rectangle {
	x0 := int(Clamp(c.X, 0, 1)*source.Width + 0.5)
	y0 := int(Clamp(c.Y, 0, 1)*source.Height + 0.5)
	x1 := int(Clamp(c.X+c.Width, 0, 1)*source.Width + 0.5)
	y1 := int(Clamp(c.Y+c.Height, 0, 1)*source.Height + 0.5)
	return image.Rect(x0, y0, x1, y1)
}

// AnalysisResult contains the pet located by a vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
