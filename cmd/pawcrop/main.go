package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/menta2k/pawcrop"
	"github.com/menta2k/pawcrop/internal/config"
	"github.com/menta2k/pawcrop/pkg/cropper"
	"github.com/menta2k/pawcrop/pkg/detection"
	"github.com/menta2k/pawcrop/pkg/llamacpp"
	"github.com/menta2k/pawcrop/pkg/ollama"
	"github.com/menta2k/pawcrop/pkg/processing"
	"github.com/menta2k/pawcrop/pkg/source"
	"github.com/menta2k/pawcrop/pkg/store"
	"github.com/menta2k/pawcrop/pkg/types"
	"github.com/menta2k/pawcrop/pkg/vision"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pawcrop",
	Short: "Square crop editor for memorial pet photos",
	Long: `pawcrop frames a pet photo as a square crop.

Edits are recorded gesture scripts (pinch, drag, reset, commit) replayed
against the photo. Committed crops are stored per photo id and rendered
at every configured output size.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads --config, or the default path when it exists
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logger.Debug("no config file, using defaults", zap.String("path", path))
			return config.Default(), nil
		}
	}
	c, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", zap.String("path", path))
	return c, nil
}

// app is a Service plus the resources it holds open
type app struct {
	svc   *pawcrop.Service
	store *store.Store
	proc  *processing.Processor
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}

func newApp(ctx context.Context, locator pawcrop.SubjectLocator) (*app, error) {
	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	proc := processing.NewProcessor(cfg.Source.FetchTimeout)
	loader := source.NewLoader(source.Config{
		SupportedFormats: cfg.Source.SupportedFormats,
		MinImageSize:     cfg.Source.MinImageSize,
	}, proc)

	svc, err := pawcrop.New(pawcrop.Deps{
		Store:     st,
		Loader:    loader,
		Renderer:  cropper.NewWithConfig(cropper.Config{AllowUpscaling: cfg.Output.Upscale}),
		Processor: proc,
		Locator:   locator,
		Logger:    logger,
	}, pawcrop.Options{
		MaxScale: cfg.Session.MaxScale,
		Padding:  cfg.Detection.Padding,
		Output: pawcrop.OutputOptions{
			Format:   cfg.Output.Format,
			Quality:  cfg.Output.Quality,
			Lossless: cfg.Output.Lossless,
			Dir:      cfg.Output.Dir,
			Prefix:   cfg.Output.Prefix,
			Suffix:   cfg.Output.Suffix,
			Sizes:    cfg.Output.Sizes,
		},
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return &app{svc: svc, store: st, proc: proc}, nil
}

// newLocator builds the configured subject locator
func newLocator(proc *processing.Processor) (pawcrop.SubjectLocator, error) {
	d := cfg.Detection
	url := d.URL
	if url == "" {
		url = config.DefaultURL(d.Backend)
	}
	opts := detection.Options{
		Model:       d.Model,
		SendFormat:  d.SendFormat,
		SendSize:    d.SendSize,
		SendQuality: d.SendQuality,
	}

	switch d.Backend {
	case "saliency":
		return vision.New(), nil
	case "ollama":
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return detection.NewDetector(c, proc, opts), nil
	case "llamacpp":
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return detection.NewDetector(c, proc, opts), nil
	}
	return nil, fmt.Errorf("unknown backend: %s (use one of %v)", d.Backend, config.Backends)
}

// parseSize reads WIDTHxHEIGHT
func parseSize(s string) (types.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return types.Size{}, fmt.Errorf("invalid size %q (want WIDTHxHEIGHT)", s)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return types.Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return types.Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	size := types.Size{Width: width, Height: height}
	if !size.Positive() {
		return types.Size{}, fmt.Errorf("size %q must be positive", s)
	}
	return size, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.GetConfigPath(), "Config file (YAML or JSON)")

	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
