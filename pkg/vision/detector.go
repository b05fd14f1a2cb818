package vision

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/pawcrop/pkg/types"
)

// SalientLabel is the label reported for boxes found without a vision model
const SalientLabel = "salient region"

// SubjectDetector locates the most salient region of a photo without a model.
// It is the offline fallback for crop suggestions.
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for saliency detection
type DetectionConfig struct {
	// AnalysisSize is the long side of the downscaled analysis raster
	AnalysisSize   int
	EdgeWeight     float64
	ContrastWeight float64
	// Sensitivity is the number of standard deviations above the mean a
	// cell needs to count as subject
	Sensitivity     float64
	MinSubjectRatio float64
}

// New creates a SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{
		config: DetectionConfig{
			AnalysisSize:    64,
			EdgeWeight:      0.4,
			ContrastWeight:  0.6,
			Sensitivity:     1.0,
			MinSubjectRatio: 0.1,
		},
	}
}

// NewWithConfig creates a SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	if config.AnalysisSize < 8 {
		config.AnalysisSize = 8
	}
	return &SubjectDetector{config: config}
}

// Locate implements the suggestion locator contract. The context is unused;
// detection is synchronous and bounded by AnalysisSize.
func (d *SubjectDetector) Locate(_ context.Context, img image.Image) (*types.AnalysisResult, error) {
	box, confidence := d.FindSubject(img)
	cx, cy := box.Center()
	return &types.AnalysisResult{
		Primary: types.Primary{
			Label:      SalientLabel,
			Confidence: confidence,
			Box:        box,
			Cx:         cx,
			Cy:         cy,
		},
		Description: "most salient region by edge and contrast",
		Tags:        []string{"saliency", "offline"},
	}, nil
}

// FindSubject returns the normalized bounding box of the salient cells and a
// confidence in [0,1]. A flat image yields a centered half-size box with zero
// confidence.
func (d *SubjectDetector) FindSubject(img image.Image) (types.Box, float64) {
	fallback := types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}

	small := imaging.Fit(img, d.config.AnalysisSize, d.config.AnalysisSize, imaging.Box)
	w, h := small.Bounds().Dx(), small.Bounds().Dy()
	if w < 2 || h < 2 {
		return fallback, 0
	}

	sal := d.saliencyMap(small)

	var sum, sumSq, peak float64
	for _, v := range sal {
		sum += v
		sumSq += v * v
		peak = math.Max(peak, v)
	}
	n := float64(len(sal))
	mean := sum / n
	std := math.Sqrt(math.Max(0, sumSq/n-mean*mean))
	if std < 1e-6 {
		return fallback, 0
	}
	threshold := mean + d.config.Sensitivity*std

	minX, minY, maxX, maxY := w, h, -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if sal[y*w+x] < threshold {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < 0 {
		return fallback, 0
	}

	box := types.Box{
		X: float64(minX) / float64(w),
		Y: float64(minY) / float64(h),
		W: float64(maxX-minX+1) / float64(w),
		H: float64(maxY-minY+1) / float64(h),
	}
	box = growToMin(box, d.config.MinSubjectRatio)
	confidence := types.Clamp((peak-mean)/(peak+1e-9), 0, 1)
	return box, confidence
}

// saliencyMap scores every cell by luminance contrast against the image mean
// plus local gradient strength.
func (d *SubjectDetector) saliencyMap(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	lum := make([]float64, w*h)
	var total float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(x, y)
			l := (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255
			lum[y*w+x] = l
			total += l
		}
	}
	mean := total / float64(len(lum))

	sal := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			var edge float64
			if x+1 < w {
				edge = math.Max(edge, math.Abs(lum[i]-lum[i+1]))
			}
			if y+1 < h {
				edge = math.Max(edge, math.Abs(lum[i]-lum[i+w]))
			}
			sal[i] = d.config.EdgeWeight*edge + d.config.ContrastWeight*math.Abs(lum[i]-mean)
		}
	}
	return sal
}

// growToMin expands a box around its center until each side is at least ratio
func growToMin(b types.Box, ratio float64) types.Box {
	cx, cy := b.Center()
	if b.W < ratio {
		b.W = ratio
		b.X = types.Clamp(cx-ratio/2, 0, 1-ratio)
	}
	if b.H < ratio {
		b.H = ratio
		b.Y = types.Clamp(cy-ratio/2, 0, 1-ratio)
	}
	return b
}
