package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/menta2k/pawcrop/internal/config"
	"github.com/menta2k/pawcrop/internal/utils"
	"github.com/menta2k/pawcrop/pkg/detection"
	"github.com/menta2k/pawcrop/pkg/gesture"
	"github.com/menta2k/pawcrop/pkg/processing"
	"github.com/menta2k/pawcrop/pkg/session"
	"github.com/menta2k/pawcrop/pkg/source"
	"github.com/menta2k/pawcrop/pkg/types"
)

var (
	inPath     string
	photoID    string
	container  string
	scriptPath string
	doRender   bool
	doSave     bool
	debugOut   bool
	backend    string
	testVision bool
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Show how a photo is laid out in the editor",
	Long: `Loads the photo and prints the unzoomed editor state for the given
container: display size, crop viewport and the full-frame crop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := parseSize(container)
		if err != nil {
			return err
		}
		proc := processing.NewProcessor(cfg.Source.FetchTimeout)
		loader := source.NewLoader(source.Config{
			SupportedFormats: cfg.Source.SupportedFormats,
			MinImageSize:     cfg.Source.MinImageSize,
		}, proc)

		img, err := loader.Load(cmd.Context(), inPath)
		if err != nil {
			return err
		}
		sess, err := session.New(img.Size, size, session.WithMaxScale(cfg.Session.MaxScale))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Source types.Size     `json:"source"`
			State  session.State  `json:"state"`
			Crop   types.CropData `json:"crop"`
		}{img.Size, sess.State(), sess.CommitCrop()})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Replay a gesture script against a photo",
	Long: `Opens the editor on the photo (seeded from its stored crop, if any),
replays the recorded gestures and stores the crop when the script commits.

Example script:

  container: {width: 400, height: 400}
  events:
    - zoom: 2.0
    - zoom_end
    - pan: {x: 100, y: 0}
    - pan_end
    - commit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		script, err := gesture.Load(scriptPath)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		img, err := a.svc.Load(ctx, inPath)
		if err != nil {
			return err
		}
		id := resolvePhotoID()

		result, err := a.svc.Replay(ctx, id, img, script)
		if err != nil {
			return err
		}

		out := struct {
			PhotoID   string          `json:"photo_id"`
			Committed bool            `json:"committed"`
			Crop      *types.CropData `json:"crop,omitempty"`
			State     session.State   `json:"state"`
			Files     []string        `json:"files,omitempty"`
		}{PhotoID: id, Committed: result.Committed, Crop: result.Model.Result, State: result.Model.Session.State()}

		if result.Committed && doRender {
			if out.Files, err = a.svc.Render(ctx, id, img); err != nil {
				return err
			}
		}
		if result.Committed && debugOut {
			if err := writeOverlay(a.proc, img, types.Box{}, *result.Model.Result, id); err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Propose a crop around the pet",
	Long: `Locates the pet with the configured backend (saliency, ollama or
llamacpp) and prints a crop framed around it. With --save the crop is
stored and rendered.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		size, err := parseSize(container)
		if err != nil {
			return err
		}
		if backend != "" {
			cfg.Detection.Backend = backend
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		locator, err := newLocator(processing.NewProcessor(cfg.Source.FetchTimeout))
		if err != nil {
			return err
		}
		a, err := newApp(ctx, locator)
		if err != nil {
			return err
		}
		defer a.Close()

		img, err := a.svc.Load(ctx, inPath)
		if err != nil {
			return err
		}
		id := resolvePhotoID()

		var visionCheck string
		if testVision {
			d, ok := locator.(*detection.Detector)
			if !ok {
				return fmt.Errorf("--test-vision needs a model backend, not %s", cfg.Detection.Backend)
			}
			if visionCheck, err = d.CheckVision(ctx, img.Image); err != nil {
				return err
			}
			logger.Info("model can see the photo", zap.String("model", cfg.Detection.Model), zap.String("answer", visionCheck))
		}

		s, err := a.svc.Suggest(ctx, img, size)
		if err != nil {
			return err
		}

		out := struct {
			PhotoID     string                `json:"photo_id"`
			VisionCheck string                `json:"vision_check,omitempty"`
			Analysis    *types.AnalysisResult `json:"analysis"`
			Fallback    bool                  `json:"fallback"`
			Crop        types.CropData        `json:"crop"`
			Files       []string              `json:"files,omitempty"`
		}{PhotoID: id, VisionCheck: visionCheck, Analysis: s.Analysis, Fallback: s.Fallback, Crop: s.Crop}

		if doSave {
			res, err := a.svc.Commit(ctx, id, img, s.Crop)
			if err != nil {
				return err
			}
			out.Files = res.Files
		}
		if debugOut {
			if err := writeOverlay(a.proc, img, s.Analysis.Primary.Box, s.Crop, id); err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the stored crop of a photo",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		img, err := a.svc.Load(ctx, inPath)
		if err != nil {
			return err
		}
		files, err := a.svc.Render(ctx, resolvePhotoID(), img)
		if err != nil {
			return err
		}
		for _, f := range files {
			info, err := os.Stat(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", f, utils.FormatFileSize(info.Size()))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [photo-id]",
	Short: "Show stored crops",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			rec, err := a.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		}
		records, err := a.store.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	// the file may not exist yet, so skip loading it
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if utils.FileExists(path) {
			return fmt.Errorf("config file already exists: %s", path)
		}
		if err := config.Default().SaveToFile(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

// resolvePhotoID falls back to the input file name
func resolvePhotoID() string {
	if photoID != "" {
		return photoID
	}
	return utils.PhotoIDFromPath(inPath)
}

func writeOverlay(proc *processing.Processor, img *source.Image, subject types.Box, crop types.CropData, id string) error {
	dir := cfg.Output.Dir
	if err := utils.EnsureDir(dir); err != nil {
		return err
	}
	overlay := proc.CreateDebugOverlay(img.Image, subject, crop)
	path := filepath.Join(dir, fmt.Sprintf("%s_debug.png", utils.SanitizeFilename(id)))
	if err := proc.SaveImage(overlay, path, "png", 0, false); err != nil {
		return fmt.Errorf("debug overlay save failed: %w", err)
	}
	if logger != nil {
		logger.Info("wrote debug overlay", zap.String("path", path))
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{fitCmd, editCmd, suggestCmd, renderCmd} {
		c.Flags().StringVarP(&inPath, "in", "i", "", "input photo path or URL (jpg/png/webp)")
		_ = c.MarkFlagRequired("in")
	}
	for _, c := range []*cobra.Command{editCmd, suggestCmd, renderCmd} {
		c.Flags().StringVar(&photoID, "photo-id", "", "photo id (default: input file name)")
	}
	for _, c := range []*cobra.Command{fitCmd, suggestCmd} {
		c.Flags().StringVar(&container, "container", "400x400", "editor container size WIDTHxHEIGHT")
	}
	for _, c := range []*cobra.Command{editCmd, suggestCmd} {
		c.Flags().BoolVar(&debugOut, "debug", false, "write a debug overlay of the crop")
	}

	editCmd.Flags().StringVarP(&scriptPath, "script", "s", "", "gesture script (YAML)")
	_ = editCmd.MarkFlagRequired("script")
	editCmd.Flags().BoolVar(&doRender, "render", false, "render output sizes after a commit")

	suggestCmd.Flags().StringVar(&backend, "backend", "", "override detection backend: "+strings.Join(config.Backends, "|"))
	suggestCmd.Flags().BoolVar(&doSave, "save", false, "store and render the suggested crop")
	suggestCmd.Flags().BoolVar(&testVision, "test-vision", false, "ask the model to describe the photo before locating the pet")

	configCmd.AddCommand(configInitCmd)
}
