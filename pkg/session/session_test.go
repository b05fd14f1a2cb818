package session

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/pawcrop/pkg/types"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func newSquare(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := New(types.Size{Width: 1000, Height: 1000}, types.Size{Width: 400, Height: 400}, opts...)
	require.NoError(t, err)
	return s
}

func TestNewRejectsInvalidGeometry(t *testing.T) {
	tests := []struct {
		name      string
		source    types.Size
		container types.Size
	}{
		{"zero source", types.Size{}, types.Size{Width: 400, Height: 400}},
		{"negative source", types.Size{Width: -1, Height: 10}, types.Size{Width: 400, Height: 400}},
		{"zero container", types.Size{Width: 10, Height: 10}, types.Size{Width: 0, Height: 400}},
		{"infinite container", types.Size{Width: 10, Height: 10}, types.Size{Width: math.Inf(1), Height: 400}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.source, tt.container)
			assert.ErrorIs(t, err, ErrInvalidGeometry)
		})
	}
}

func TestFitDisplaySize(t *testing.T) {
	tests := []struct {
		name      string
		source    types.Size
		container types.Size
		want      types.Size
	}{
		{"wide source in tall container", types.Size{Width: 1200, Height: 800}, types.Size{Width: 400, Height: 600}, types.Size{Width: 400, Height: 800.0 / 3}},
		{"tall source in tall container", types.Size{Width: 800, Height: 1200}, types.Size{Width: 400, Height: 600}, types.Size{Width: 400, Height: 600}},
		{"square source in wide container", types.Size{Width: 500, Height: 500}, types.Size{Width: 600, Height: 400}, types.Size{Width: 400, Height: 400}},
		{"square in square", types.Size{Width: 1000, Height: 1000}, types.Size{Width: 400, Height: 400}, types.Size{Width: 400, Height: 400}},
		{"invalid", types.Size{}, types.Size{Width: 400, Height: 400}, types.Size{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitDisplaySize(tt.source, tt.container)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("FitDisplaySize mismatch (-want +got):\n%s", diff)
			}
		})
	}

	got := FitDisplaySize(types.Size{Width: 1200, Height: 800}, types.Size{Width: 400, Height: 600})
	assert.InDelta(t, 266.67, got.Height, 0.01)
}

func TestFitReclampsOffset(t *testing.T) {
	s := newSquare(t)
	s.ApplyZoom(2)
	s.EndZoom()
	s.ApplyPan(types.Vector{X: 200, Y: -200})
	s.CommitPan()

	s.Fit(types.Size{Width: 200, Height: 200})
	assert.Equal(t, types.Size{Width: 200, Height: 200}, s.DisplaySize())
	assert.Equal(t, types.Vector{X: 100, Y: -100}, s.Offset())

	s.Fit(types.Size{Width: 0, Height: 200})
	assert.Equal(t, types.Size{Width: 200, Height: 200}, s.DisplaySize(), "invalid container keeps geometry")
}

func TestScaleStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := newSquare(t)

	for i := 0; i < 2000; i++ {
		s.ApplyZoom(rng.Float64() * 8)
		if rng.IntN(3) == 0 {
			s.EndZoom()
		}
		require.GreaterOrEqual(t, s.Scale(), 1.0)
		require.LessOrEqual(t, s.Scale(), DefaultMaxScale)
	}

	s.ApplyZoom(math.NaN())
	assert.Equal(t, 1.0, s.Scale())
	s.ApplyZoom(-3)
	assert.Equal(t, 1.0, s.Scale())
}

func TestZoomAccumulatesAcrossPinches(t *testing.T) {
	s := newSquare(t)

	s.ApplyZoom(1.5)
	s.ApplyZoom(2)
	assert.Equal(t, 2.0, s.Scale(), "same gesture does not accumulate")
	s.EndZoom()

	s.ApplyZoom(1.5)
	assert.Equal(t, 3.0, s.Scale())
	s.EndZoom()

	s.ApplyZoom(10)
	assert.Equal(t, DefaultMaxScale, s.Scale())
	s.EndZoom()

	s.ApplyZoom(0.1)
	assert.InDelta(t, 1.0, s.Scale(), 1e-12)
}

func TestWithMaxScale(t *testing.T) {
	s := newSquare(t, WithMaxScale(3))
	s.ApplyZoom(4)
	assert.Equal(t, 3.0, s.Scale())

	s = newSquare(t, WithMaxScale(0.5))
	s.ApplyZoom(4)
	assert.Equal(t, 1.0, s.Scale())

	for _, bad := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		s = newSquare(t, WithMaxScale(bad))
		s.ApplyZoom(1e9)
		assert.Equal(t, DefaultMaxScale, s.Scale(), "max scale %v", bad)
		assert.Equal(t, DefaultMaxScale, s.State().MaxScale)

		crop := s.CommitCrop()
		assert.True(t, crop.Valid(), "max scale %v gave %+v", bad, crop)
		assert.InDelta(t, 1/DefaultMaxScale, crop.Width, 1e-12)
	}
}

func TestOffsetNeverExceedsImageBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	sessions := map[string]*Session{}
	for name, container := range map[string]types.Size{
		"square":   {Width: 400, Height: 400},
		"portrait": {Width: 300, Height: 700},
		"wide":     {Width: 900, Height: 300},
	} {
		s, err := New(types.Size{Width: 1200, Height: 900}, container)
		require.NoError(t, err)
		sessions[name] = s
	}

	for name, s := range sessions {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 2000; i++ {
				switch rng.IntN(4) {
				case 0:
					s.ApplyZoom(rng.Float64() * 4)
				case 1:
					s.EndZoom()
				case 2:
					s.ApplyPan(types.Vector{X: (rng.Float64() - 0.5) * 3000, Y: (rng.Float64() - 0.5) * 3000})
				case 3:
					s.CommitPan()
				}
				d := s.DisplaySize()
				limitX := math.Max(0, d.Width*s.Scale()-d.Width) / 2
				limitY := math.Max(0, d.Height*s.Scale()-d.Height) / 2
				require.LessOrEqual(t, math.Abs(s.Offset().X), limitX+1e-9)
				require.LessOrEqual(t, math.Abs(s.Offset().Y), limitY+1e-9)

				crop := s.CommitCrop()
				require.True(t, crop.Valid(), "invalid crop %+v", crop)
				// square in display units
				require.InDelta(t, crop.Width*d.Width, crop.Height*d.Height, 1e-6)
			}
		})
	}
}

func TestZoomOutReclampsOffset(t *testing.T) {
	s := newSquare(t)
	s.ApplyZoom(3)
	s.EndZoom()
	s.ApplyPan(types.Vector{X: 400, Y: 400})
	s.CommitPan()
	require.Equal(t, types.Vector{X: 400, Y: 400}, s.Offset())

	s.ApplyZoom(0.5)
	assert.Equal(t, 1.5, s.Scale())
	assert.Equal(t, types.Vector{X: 100, Y: 100}, s.Offset())
	assert.Equal(t, types.Vector{X: 100, Y: 100}, s.State().CommittedOffset)
}

func TestCommitPanPreventsJump(t *testing.T) {
	s := newSquare(t)
	s.ApplyZoom(3)
	s.EndZoom()

	s.ApplyPan(types.Vector{X: 50})
	s.ApplyPan(types.Vector{X: 80})
	s.CommitPan()
	s.ApplyPan(types.Vector{X: 10})
	assert.Equal(t, 90.0, s.Offset().X)
}

func TestCommitCropSquareUnitIsSquare(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	s := newSquare(t)
	for i := 0; i < 500; i++ {
		s.ApplyZoom(1 + rng.Float64()*5)
		s.ApplyPan(types.Vector{X: (rng.Float64() - 0.5) * 2000, Y: (rng.Float64() - 0.5) * 2000})
		crop := s.CommitCrop()
		require.Equal(t, crop.Width, crop.Height)
		require.True(t, crop.Valid())
	}
}

func TestIdentityCrop(t *testing.T) {
	tests := []struct {
		name      string
		source    types.Size
		container types.Size
		want      types.CropData
	}{
		{"square", types.Size{Width: 800, Height: 800}, types.Size{Width: 400, Height: 400}, types.FullFrame},
		{"portrait", types.Size{Width: 800, Height: 1200}, types.Size{Width: 400, Height: 600},
			types.CropData{X: 0, Y: 1.0 / 6, Width: 1, Height: 2.0 / 3, Scale: 1}},
		{"landscape", types.Size{Width: 1200, Height: 800}, types.Size{Width: 600, Height: 400},
			types.CropData{X: 1.0 / 6, Y: 0, Width: 2.0 / 3, Height: 1, Scale: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.source, tt.container)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, s.CommitCrop(), approx); diff != "" {
				t.Errorf("CommitCrop mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResetIsTotal(t *testing.T) {
	s := newSquare(t)
	s.ApplyZoom(4)
	s.EndZoom()
	s.ApplyPan(types.Vector{X: -300, Y: 120})
	s.CommitPan()

	s.Reset()
	st := s.State()
	assert.Equal(t, 1.0, st.Scale)
	assert.Equal(t, types.Vector{}, st.Offset)
	assert.Equal(t, types.Vector{}, st.CommittedOffset)

	s.ApplyZoom(2)
	assert.Equal(t, 2.0, s.Scale(), "pinch baseline is reset too")
}

func TestEndToEndScenario(t *testing.T) {
	s := newSquare(t)
	require.Equal(t, types.Size{Width: 400, Height: 400}, s.DisplaySize())

	s.ApplyZoom(2.0)
	s.EndZoom()
	s.ApplyPan(types.Vector{X: 100, Y: 0})
	s.CommitPan()

	want := types.CropData{X: 0, Y: 0, Width: 0.5, Height: 0.5, Scale: 2}
	if diff := cmp.Diff(want, s.CommitCrop(), approx); diff != "" {
		t.Errorf("CommitCrop mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "(0,0)-(500,500)", s.SourceRect().String())
}

func TestRestoreFromCropData(t *testing.T) {
	s := newSquare(t)
	s.RestoreFromCropData(types.CropData{X: 0.125, Y: 0.075, Width: 0.5, Height: 0.5, Scale: 2})

	st := s.State()
	assert.Equal(t, 2.0, st.Scale)
	assert.InDelta(t, -50, st.Offset.X, 1e-9)
	assert.InDelta(t, -30, st.Offset.Y, 1e-9)
	assert.Equal(t, st.Offset, st.CommittedOffset)

	// the forward map divides by scale, so the round trip is lossy
	crop := s.CommitCrop()
	assert.InDelta(t, 0.0625, crop.X, 1e-12)
	assert.InDelta(t, 0.0375, crop.Y, 1e-12)

	s.ApplyZoom(1.5)
	assert.Equal(t, 3.0, s.Scale(), "restored scale is the pinch baseline")

	s.RestoreFromCropData(types.CropData{Scale: 99})
	assert.Equal(t, DefaultMaxScale, s.Scale())
}

func TestRestoreExactRoundTrip(t *testing.T) {
	s := newSquare(t)
	s.ApplyZoom(2)
	s.EndZoom()
	s.ApplyPan(types.Vector{X: -100, Y: -60})
	s.CommitPan()
	crop := s.CommitCrop()
	assert.InDelta(t, 0.125, crop.X, 1e-12)
	assert.InDelta(t, 0.075, crop.Y, 1e-12)

	restored := newSquare(t)
	restored.RestoreExact(crop)
	if diff := cmp.Diff(s.State(), restored.State(), approx); diff != "" {
		t.Errorf("restored state mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(crop, restored.CommitCrop(), approx); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionCopyIsIndependent(t *testing.T) {
	s := newSquare(t)
	snapshot := *s
	s.ApplyZoom(3)
	assert.Equal(t, 1.0, snapshot.Scale())
}

func BenchmarkCommitCrop(b *testing.B) {
	s, _ := New(types.Size{Width: 4032, Height: 3024}, types.Size{Width: 390, Height: 844})
	s.ApplyZoom(2.5)
	s.ApplyPan(types.Vector{X: 40, Y: -25})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.CommitCrop()
	}
}
