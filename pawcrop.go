// Package pawcrop wires the crop editor for memorial pet photos.
//
// A Service is built explicitly from its collaborators and owns no global
// state:
//
//	st, _ := store.Open(ctx, "crops.db")
//	p := processing.NewProcessor(0)
//	svc, err := pawcrop.New(pawcrop.Deps{
//		Store:     st,
//		Loader:    source.NewLoader(source.DefaultConfig(), p),
//		Renderer:  cropper.New(),
//		Processor: p,
//		Locator:   vision.New(),
//		Logger:    logger,
//	}, pawcrop.DefaultOptions())
//
//	img, _ := svc.Load(ctx, "biscuit.jpg")
//	model, _ := svc.OpenEditor(ctx, "biscuit", img, types.Size{Width: 400, Height: 400})
//
// The editor model is then driven by editor.Update, and the Persist command it
// emits is handed back to Commit.
package pawcrop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/menta2k/pawcrop/internal/utils"
	"github.com/menta2k/pawcrop/pkg/cropper"
	"github.com/menta2k/pawcrop/pkg/detection"
	"github.com/menta2k/pawcrop/pkg/editor"
	"github.com/menta2k/pawcrop/pkg/gesture"
	"github.com/menta2k/pawcrop/pkg/processing"
	"github.com/menta2k/pawcrop/pkg/session"
	"github.com/menta2k/pawcrop/pkg/source"
	"github.com/menta2k/pawcrop/pkg/store"
	"github.com/menta2k/pawcrop/pkg/types"
)

// Version of the pawcrop library
const Version = "1.0.0"

// ErrNoLocator is returned by Suggest when no subject locator is configured
var ErrNoLocator = errors.New("no subject locator configured")

// CropStore persists committed crops per photo
type CropStore interface {
	Save(ctx context.Context, photoID string, crop types.CropData, source types.Size) (store.Record, error)
	Get(ctx context.Context, photoID string) (store.Record, error)
}

// SubjectLocator finds the pet in a photo
type SubjectLocator interface {
	Locate(ctx context.Context, img image.Image) (*types.AnalysisResult, error)
}

// Deps are the collaborators of a Service. Store, Loader, Renderer and
// Processor are required; Locator is only needed by Suggest.
type Deps struct {
	Store     CropStore
	Loader    *source.Loader
	Renderer  *cropper.Renderer
	Processor *processing.Processor
	Locator   SubjectLocator
	Logger    *zap.Logger
}

// Options tune editing and output
type Options struct {
	MaxScale float64
	// Padding around a located subject, as a fraction of its size
	Padding float64
	Output  OutputOptions
}

// OutputOptions describe the rendered crop files
type OutputOptions struct {
	Format   string
	Quality  int
	Lossless bool
	Dir      string
	Prefix   string
	Suffix   string
	Sizes    []int
}

// DefaultOptions returns the stock editing limits and output sizes
func DefaultOptions() Options {
	return Options{
		MaxScale: session.DefaultMaxScale,
		Padding:  0.15,
		Output: OutputOptions{
			Format:  "jpg",
			Quality: 90,
			Dir:     ".",
			Suffix:  "_crop",
			Sizes:   []int{1024, 512, 128},
		},
	}
}

// Service runs edit sessions against a crop store
type Service struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New validates deps and builds a Service
func New(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pawcrop: store is required")
	case deps.Loader == nil:
		return nil, errors.New("pawcrop: loader is required")
	case deps.Renderer == nil:
		return nil, errors.New("pawcrop: renderer is required")
	case deps.Processor == nil:
		return nil, errors.New("pawcrop: processor is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxScale < 1 || math.IsNaN(opts.MaxScale) || math.IsInf(opts.MaxScale, 0) {
		opts.MaxScale = session.DefaultMaxScale
	}
	return &Service{deps: deps, opts: opts, logger: logger}, nil
}

// Load fetches and validates a photo. No session may be opened for a photo
// that failed to load.
func (s *Service) Load(ctx context.Context, location string) (*source.Image, error) {
	img, err := s.deps.Loader.Load(ctx, location)
	if err != nil {
		s.logger.Warn("photo load failed", zap.String("location", location), zap.Error(err))
		return nil, err
	}
	s.logger.Debug("photo loaded",
		zap.String("location", location),
		zap.Float64("width", img.Size.Width),
		zap.Float64("height", img.Size.Height))
	return img, nil
}

func (s *Service) newSession(img *source.Image, container types.Size) (*session.Session, error) {
	return session.New(img.Size, container, session.WithMaxScale(s.opts.MaxScale))
}

// OpenEditor starts an edit of photoID shown inside container. A previously
// stored crop seeds the view; otherwise the editor opens unzoomed.
func (s *Service) OpenEditor(ctx context.Context, photoID string, img *source.Image, container types.Size) (editor.Model, error) {
	sess, err := s.newSession(img, container)
	if err != nil {
		return editor.Model{}, err
	}

	rec, err := s.deps.Store.Get(ctx, photoID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Debug("no stored crop", zap.String("photo_id", photoID))
	case err != nil:
		return editor.Model{}, err
	default:
		if rec.Source != img.Size {
			s.logger.Warn("stored crop was made on a different source size",
				zap.String("photo_id", photoID),
				zap.Any("stored", rec.Source),
				zap.Any("current", img.Size))
		}
		sess.RestoreExact(rec.Crop)
		s.logger.Debug("restored stored crop", zap.String("photo_id", photoID), zap.Any("crop", rec.Crop))
	}
	return editor.NewModel(sess), nil
}

// EditResult is the outcome of a replayed edit
type EditResult struct {
	Model     editor.Model
	Committed bool
	Record    *store.Record
}

// Replay opens an editor for photoID, feeds it the recorded gestures and
// executes the commands it emits.
func (s *Service) Replay(ctx context.Context, photoID string, img *source.Image, script *gesture.Script) (*EditResult, error) {
	model, err := s.OpenEditor(ctx, photoID, img, script.Container)
	if err != nil {
		return nil, err
	}

	model, cmds := editor.Run(model, script.Events)
	result := &EditResult{Model: model}
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case editor.Persist:
			rec, err := s.persist(ctx, photoID, img, c.Crop)
			if err != nil {
				return nil, err
			}
			result.Record = &rec
		case editor.Close:
			result.Committed = c.Committed
			s.logger.Info("editor closed", zap.String("photo_id", photoID), zap.Bool("committed", c.Committed))
		}
	}
	return result, nil
}

func (s *Service) persist(ctx context.Context, photoID string, img *source.Image, crop types.CropData) (store.Record, error) {
	rec, err := s.deps.Store.Save(ctx, photoID, crop, img.Size)
	if err != nil {
		return store.Record{}, fmt.Errorf("failed to persist crop: %w", err)
	}
	s.logger.Info("crop saved",
		zap.String("photo_id", photoID),
		zap.Float64("x", crop.X),
		zap.Float64("y", crop.Y),
		zap.Float64("width", crop.Width),
		zap.Float64("height", crop.Height),
		zap.Float64("scale", crop.Scale))
	return rec, nil
}

// CommitResult holds the stored record and the rendered files
type CommitResult struct {
	Record store.Record
	Files  []string
}

// Commit persists crop for photoID and renders it at every output size
func (s *Service) Commit(ctx context.Context, photoID string, img *source.Image, crop types.CropData) (*CommitResult, error) {
	rec, err := s.persist(ctx, photoID, img, crop)
	if err != nil {
		return nil, err
	}
	files, err := s.render(ctx, photoID, img, rec.Crop)
	if err != nil {
		return nil, err
	}
	return &CommitResult{Record: rec, Files: files}, nil
}

// Render writes the stored crop of photoID at every output size
func (s *Service) Render(ctx context.Context, photoID string, img *source.Image) ([]string, error) {
	rec, err := s.deps.Store.Get(ctx, photoID)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, photoID, img, rec.Crop)
}

func (s *Service) render(ctx context.Context, photoID string, img *source.Image, crop types.CropData) ([]string, error) {
	out := s.opts.Output
	outputs, err := s.deps.Renderer.Render(ctx, img.Image, crop, out.Sizes)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", photoID, err)
	}
	if err := utils.EnsureDir(out.Dir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	files := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := utils.CropFilename(out.Dir, out.Prefix, photoID, out.Suffix, o.Size, out.Format)
		if err := s.deps.Processor.SaveImage(o.Image, path, out.Format, out.Quality, out.Lossless); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", path, err)
		}
		s.logger.Debug("rendered crop", zap.String("path", path), zap.Int("size", o.Size))
		files = append(files, path)
	}
	return files, nil
}

// Suggestion is a crop proposed from the located pet
type Suggestion struct {
	Analysis *types.AnalysisResult
	Fallback bool
	Crop     types.CropData
	Model    editor.Model
}

// Suggest locates the pet and opens an editor already framed around it
func (s *Service) Suggest(ctx context.Context, img *source.Image, container types.Size) (*Suggestion, error) {
	if s.deps.Locator == nil {
		return nil, ErrNoLocator
	}
	sess, err := s.newSession(img, container)
	if err != nil {
		return nil, err
	}

	analysis, err := s.deps.Locator.Locate(ctx, img.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to locate subject: %w", err)
	}
	if analysis == nil {
		return nil, errors.New("failed to locate subject: empty result")
	}
	fallback := detection.IsFallback(analysis)
	if fallback {
		s.logger.Warn("subject location fell back to a default box", zap.String("location", img.Location))
	}

	crop := detection.SuggestCrop(analysis.Primary.Box, sess.DisplaySize(), s.opts.MaxScale, s.opts.Padding)
	sess.RestoreExact(crop)
	s.logger.Info("crop suggested",
		zap.String("label", analysis.Primary.Label),
		zap.Float64("confidence", analysis.Primary.Confidence),
		zap.Any("crop", crop))

	return &Suggestion{
		Analysis: analysis,
		Fallback: fallback,
		Crop:     sess.CommitCrop(),
		Model:    editor.NewModel(sess),
	}, nil
}
