package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/pawcrop/internal/config"
	"github.com/menta2k/pawcrop/pkg/processing"
	"github.com/menta2k/pawcrop/pkg/store"
	"github.com/menta2k/pawcrop/pkg/types"
)

// execute runs the root command with fresh flag values and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	inPath, photoID, scriptPath, backend = "", "", "", ""
	container = "400x400"
	doRender, doSave, debugOut, testVision, verbose = false, false, false, false, false
	configPath = config.GetConfigPath()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

type workspace struct {
	dir    string
	config string
	photo  string
	cfg    *config.Config
}

func newWorkspace(t *testing.T, mutate func(*config.Config)) *workspace {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "crops.db")
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.Format = "png"
	cfg.Output.Sizes = []int{64}
	if mutate != nil {
		mutate(cfg)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	photo := filepath.Join(dir, "biscuit.png")
	require.NoError(t, processing.NewProcessor(0).SaveImage(img, photo, "png", 0, false))

	return &workspace{dir: dir, config: cfgPath, photo: photo, cfg: cfg}
}

func TestEditShowAndRender(t *testing.T) {
	ws := newWorkspace(t, nil)
	script := filepath.Join(ws.dir, "zoom.yaml")
	require.NoError(t, os.WriteFile(script, []byte(`container: {width: 400, height: 400}
events:
  - zoom: 2
  - zoom_end
  - pan: [200, 200]
  - pan_end
  - commit
`), 0o644))

	out, err := execute(t, "--config", ws.config, "edit", "--in", ws.photo, "--script", script, "--render")
	require.NoError(t, err)

	var edited struct {
		PhotoID   string          `json:"photo_id"`
		Committed bool            `json:"committed"`
		Crop      *types.CropData `json:"crop"`
		Files     []string        `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &edited))
	assert.Equal(t, "biscuit", edited.PhotoID)
	assert.True(t, edited.Committed)
	require.NotNil(t, edited.Crop)
	assert.Equal(t, types.CropData{X: 0, Y: 0, Width: 0.5, Height: 0.5, Scale: 2}, *edited.Crop)
	require.Len(t, edited.Files, 1)
	assert.FileExists(t, edited.Files[0])

	out, err = execute(t, "--config", ws.config, "show", "biscuit")
	require.NoError(t, err)
	var rec store.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "biscuit", rec.PhotoID)
	assert.Equal(t, *edited.Crop, rec.Crop)
	assert.Equal(t, types.Size{Width: 200, Height: 200}, rec.Source)

	out, err = execute(t, "--config", ws.config, "show")
	require.NoError(t, err)
	var records []store.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)

	out, err = execute(t, "--config", ws.config, "render", "--in", ws.photo)
	require.NoError(t, err)
	assert.Contains(t, out, edited.Files[0])

	_, err = execute(t, "--config", ws.config, "show", "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSuggestWithVisionCheck(t *testing.T) {
	const reply = `{"primary":{"label":"dog","confidence":0.9,"box":{"x":0.4,"y":0.4,"w":0.2,"h":0.2}},"description":"a dog"}`
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{map[string]any{"message": map[string]any{
			"role":    "assistant",
			"content": reply,
		}}}})
	}))
	defer srv.Close()

	ws := newWorkspace(t, func(c *config.Config) {
		c.Detection.Backend = "llamacpp"
		c.Detection.URL = srv.URL
		c.Detection.Padding = 0
	})

	out, err := execute(t, "--config", ws.config, "suggest", "--in", ws.photo, "--test-vision", "--save")
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())

	var suggested struct {
		VisionCheck string         `json:"vision_check"`
		Fallback    bool           `json:"fallback"`
		Crop        types.CropData `json:"crop"`
		Files       []string       `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &suggested))
	assert.NotEmpty(t, suggested.VisionCheck)
	assert.False(t, suggested.Fallback)
	want := types.CropData{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2, Scale: 5}
	if diff := cmp.Diff(want, suggested.Crop, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("suggested crop mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, suggested.Files, 1)
	assert.FileExists(t, suggested.Files[0])
}

func TestVisionCheckNeedsModelBackend(t *testing.T) {
	ws := newWorkspace(t, nil)
	_, err := execute(t, "--config", ws.config, "suggest", "--in", ws.photo, "--backend", "saliency", "--test-vision")
	assert.ErrorContains(t, err, "needs a model backend")
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    types.Size
		wantErr bool
	}{
		{in: "400x400", want: types.Size{Width: 400, Height: 400}},
		{in: " 375X667 ", want: types.Size{Width: 375, Height: 667}},
		{in: "412.5x915", want: types.Size{Width: 412.5, Height: 915}},
		{in: "400", wantErr: true},
		{in: "axb", wantErr: true},
		{in: "0x400", wantErr: true},
		{in: "400x-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pawcrop", "config.yaml")
	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	loaded, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Output, loaded.Output)

	_, err = execute(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")
}
