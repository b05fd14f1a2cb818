package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/menta2k/pawcrop/pkg/client"
	"github.com/menta2k/pawcrop/pkg/processing"
	"github.com/menta2k/pawcrop/pkg/types"
)

// SimpleTestPrompt checks whether the model can see images at all
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model to locate the pet for a portrait crop
const DefaultPrompt = `You are locating a pet in a memorial photo.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (at most 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box should tightly include the animal's head and body. If several animals are present, pick the most prominent one.
- cx, cy is the animal's face if visible, otherwise the box center.
- Label is the species in lowercase (dog, cat, rabbit, bird, horse, ...).
- Tags: lowercase, concise, no punctuation or duplicates.
- If no animal is visible, return:
  {"primary":{"label":"none","confidence":0.0,"box":{"x":0.25,"y":0.25,"w":0.50,"h":0.50},"cx":0.5,"cy":0.5},"description":"no pet visible","tags":["none"]}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ErrNoVision is returned when the model gives no description of the image
var ErrNoVision = errors.New("model returned no description of the image")

// fallbackIndicators mark replies the model or parser produced without a real subject
var fallbackIndicators = []string{"unclear", "empty", "parse", "error", "fallback", "non-json", "no json"}

// Options controls how photos are sent to the model
type Options struct {
	Model       string
	Prompt      string
	SendFormat  string
	SendSize    int
	SendQuality int
}

// Detector locates pets using a vision model
type Detector struct {
	client    client.VisionClient
	processor *processing.Processor
	opts      Options
}

// NewDetector creates a detector with a vision client
func NewDetector(c client.VisionClient, p *processing.Processor, opts Options) *Detector {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.SendFormat == "" {
		opts.SendFormat = "jpg"
	}
	if opts.SendQuality <= 0 {
		opts.SendQuality = 85
	}
	return &Detector{client: c, processor: p, opts: opts}
}

// Locate encodes img for the model and detects the pet in it
func (d *Detector) Locate(ctx context.Context, img image.Image) (*types.AnalysisResult, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image for model: %w", err)
	}
	return d.DetectSubject(ctx, imgB64)
}

// DetectSubject analyzes a base64 photo and returns the located pet
func (d *Detector) DetectSubject(ctx context.Context, imageB64 string) (*types.AnalysisResult, error) {
	result, err := d.client.AnalyzeImage(ctx, d.opts.Model, d.opts.Prompt, imageB64)
	if err != nil {
		return nil, err
	}

	result.Primary.Box = normalizeBox(result.Primary.Box)
	result.Primary.Cx = types.Clamp(result.Primary.Cx, 0, 1)
	result.Primary.Cy = types.Clamp(result.Primary.Cy, 0, 1)
	result.Tags = normalizeTags(result.Tags)
	return markFallback(result), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, d.opts.Model, SimpleTestPrompt, imageB64)
}

// CheckVision encodes img the way Locate does and asks the model to describe
// it. An empty answer means the backend accepted the request but never looked
// at the image, which is common with text-only models.
func (d *Detector) CheckVision(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := d.processor.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQuality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image for model: %w", err)
	}
	answer, err := d.TestVision(ctx, imgB64)
	if err != nil {
		return "", fmt.Errorf("vision check failed: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrNoVision
	}
	return answer, nil
}

// IsFallback reports whether a result carries no real subject
func IsFallback(result *types.AnalysisResult) bool {
	return result == nil || strings.EqualFold(result.Primary.Label, "none")
}

// markFallback relabels parser and model fallbacks as "none" with zero confidence
func markFallback(result *types.AnalysisResult) *types.AnalysisResult {
	if IsFallback(result) {
		result.Primary.Confidence = 0
		return result
	}
	label := strings.ToLower(result.Primary.Label)
	desc := strings.ToLower(result.Description)
	for _, indicator := range fallbackIndicators {
		if strings.Contains(label, indicator) || strings.Contains(desc, indicator) {
			result.Primary.Label = "none"
			result.Primary.Confidence = 0
			break
		}
	}
	return result
}

// normalizeBox forces a model box into the unit square, converting from
// percentages when the model ignored the instructions.
func normalizeBox(b types.Box) types.Box {
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		if b.X <= 100 && b.Y <= 100 && b.W <= 100 && b.H <= 100 {
			b = types.Box{X: b.X / 100, Y: b.Y / 100, W: b.W / 100, H: b.H / 100}
		}
	}
	b.X = types.Clamp(b.X, 0, 1)
	b.Y = types.Clamp(b.Y, 0, 1)
	b.W = types.Clamp(b.W, 0, 1-b.X)
	b.H = types.Clamp(b.H, 0, 1-b.Y)
	return b
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}

// scaleSteps is how finely SuggestCrop backs off from the ideal zoom
const scaleSteps = 64

// SuggestCrop turns a subject box into a square crop around it for a photo
// shown at display size. The result is always one an edit session can reach,
// so restoring it and committing gives the same rectangle back. The zoom is
// the highest up to maxScale at which the box plus padding on every side
// still fits the reachable window. When no zoom fits the padded box the
// padding is dropped, and when even the bare box cannot fit the framing
// that shows most of it wins.
func SuggestCrop(box types.Box, display types.Size, maxScale, padding float64) types.CropData {
	if !display.Positive() {
		return types.FullFrame
	}
	if math.IsNaN(maxScale) || maxScale < 1 {
		maxScale = 1
	}
	box = clampBox(box)

	best, bestCover := types.FullFrame, -1.0
	for _, target := range []types.Box{clampBox(padBox(box, padding)), box} {
		top := scaleToFit(target, display, maxScale)
		for i := 0; i <= scaleSteps; i++ {
			s := top - (top-1)*float64(i)/scaleSteps
			crop, ok := frame(target, display, s)
			if ok {
				return crop
			}
			if c := coverage(crop, box); c > bestCover {
				best, bestCover = crop, c
			}
		}
	}
	return best
}

// frame places the crop for scale s as close to centered on b as the
// session's pan range allows. ok reports whether b lies fully inside it.
func frame(b types.Box, display types.Size, s float64) (types.CropData, bool) {
	v := display.Min()
	w := v / (s * display.Width)
	h := v / (s * display.Height)
	x, okX := placeAxis(display.Width, v, s, w, b.X, b.X+b.W)
	y, okY := placeAxis(display.Height, v, s, h, b.Y, b.Y+b.H)
	return types.CropData{X: x, Y: y, Width: w, Height: h, Scale: s}.Clamp(), okX && okY
}

// placeAxis picks the normalized origin of a crop of the given size along
// one display axis of length d. At scale s the centered origin (d-v)/2d can
// move by (s-1)/2s either way before the pan clamp stops it.
func placeAxis(d, v, s, size, b0, b1 float64) (float64, bool) {
	const eps = 1e-9
	center := (d - v) / (2 * d)
	reach := (s - 1) / (2 * s)
	lo := math.Max(0, center-reach)
	hi := math.Min(1-size, center+reach)

	ideal := (b0+b1)/2 - size/2
	fitLo := math.Max(lo, b1-size)
	fitHi := math.Min(hi, b0)
	if fitLo <= fitHi+eps {
		return types.Clamp(ideal, fitLo, fitHi), true
	}
	return types.Clamp(ideal, lo, hi), false
}

// scaleToFit is the zoom at which b's larger side fills the viewport
func scaleToFit(b types.Box, display types.Size, maxScale float64) float64 {
	subject := math.Max(b.W*display.Width, b.H*display.Height)
	if subject <= 0 {
		return 1
	}
	return types.Clamp(display.Min()/subject, 1, maxScale)
}

// coverage is the fraction of b inside crop
func coverage(crop types.CropData, b types.Box) float64 {
	ix := math.Min(crop.X+crop.Width, b.X+b.W) - math.Max(crop.X, b.X)
	iy := math.Min(crop.Y+crop.Height, b.Y+b.H) - math.Max(crop.Y, b.Y)
	area := b.W * b.H
	if area <= 0 {
		if ix >= 0 && iy >= 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, ix) * math.Max(0, iy) / area
}

func padBox(b types.Box, padding float64) types.Box {
	padding = math.Max(0, padding)
	dx, dy := b.W*padding, b.H*padding
	return types.Box{X: b.X - dx, Y: b.Y - dy, W: b.W + 2*dx, H: b.H + 2*dy}
}

func clampBox(b types.Box) types.Box {
	x0, y0 := types.Clamp(b.X, 0, 1), types.Clamp(b.Y, 0, 1)
	x1, y1 := types.Clamp(b.X+b.W, x0, 1), types.Clamp(b.Y+b.H, y0, 1)
	return types.Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
