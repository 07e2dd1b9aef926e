package pyramid

import (
	"image"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fourLevels is a 4096px square slide at 0.25 µm/px with downsamples 1, 4, 16, 64.
func fourLevels(t *testing.T, opts ...Option) *Index {
	t.Helper()
	ix, err := NewIndex(
		[]float64{0.25, 1.0, 4.0, 16.0},
		[]image.Point{{4096, 4096}, {1024, 1024}, {256, 256}, {64, 64}},
		opts...,
	)
	require.NoError(t, err)
	return ix
}

func TestNewIndexDownsamples(t *testing.T) {
	ix := fourLevels(t)
	require.Equal(t, 4, ix.Len())

	for i, want := range []float64{1, 4, 16, 64} {
		ds, err := ix.DownsampleOf(i)
		require.NoError(t, err)
		assert.Equal(t, Downsample{X: want, Y: want}, ds)
	}
}

func TestNewIndexAnisotropicDownsample(t *testing.T) {
	ix, err := NewIndex(
		[]float64{0.5, 2.0},
		[]image.Point{{1001, 800}, {250, 200}},
	)
	require.NoError(t, err)
	ds, err := ix.DownsampleOf(1)
	require.NoError(t, err)
	assert.InDelta(t, 4.004, ds.X, 1e-9)
	assert.InDelta(t, 4.0, ds.Y, 1e-9)
}

func TestSpacingIsMonotonic(t *testing.T) {
	ix := fourLevels(t)
	for l := 0; l+1 < ix.Len(); l++ {
		a, err := ix.SpacingOf(l)
		require.NoError(t, err)
		b, err := ix.SpacingOf(l + 1)
		require.NoError(t, err)
		assert.LessOrEqual(t, a, b)
	}
}

func TestSpacingOfOutOfRange(t *testing.T) {
	ix := fourLevels(t)
	_, err := ix.SpacingOf(4)
	assert.ErrorIs(t, err, ErrLevelOutOfRange)
	_, err = ix.SpacingOf(-1)
	assert.ErrorIs(t, err, ErrLevelOutOfRange)
	_, err = ix.DownsampleOf(9)
	assert.ErrorIs(t, err, ErrLevelOutOfRange)
}

func TestNewIndexRejectsBadMetadata(t *testing.T) {
	tests := []struct {
		name     string
		spacings []float64
		dims     []image.Point
	}{
		{"empty", nil, nil},
		{"length mismatch", []float64{1, 2}, []image.Point{{10, 10}}},
		{"decreasing spacing", []float64{1, 0.5}, []image.Point{{10, 10}, {5, 5}}},
		{"zero spacing", []float64{0}, []image.Point{{10, 10}}},
		{"zero dimension", []float64{1}, []image.Point{{0, 10}}},
		{"upsampled level", []float64{1, 2}, []image.Point{{10, 10}, {20, 20}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.spacings, tt.dims)
			assert.ErrorIs(t, err, ErrInvalidPyramid)
		})
	}
}

func TestWithBaseSpacingRescalesLevels(t *testing.T) {
	ix := fourLevels(t, WithBaseSpacing(0.5))
	for i, want := range []float64{0.5, 2, 8, 32} {
		s, err := ix.SpacingOf(i)
		require.NoError(t, err)
		assert.InDelta(t, want, s, 1e-12)
	}
}

func TestBestLevelForDownsample(t *testing.T) {
	ix := fourLevels(t)
	assert.Equal(t, 0, ix.BestLevelForDownsample(1))
	assert.Equal(t, 0, ix.BestLevelForDownsample(2))
	assert.Equal(t, 1, ix.BestLevelForDownsample(3))
	assert.Equal(t, 2, ix.BestLevelForDownsample(32))
	assert.Equal(t, 3, ix.BestLevelForDownsample(1000))
	// 10 is equidistant from 4 and 16; the finer level wins.
	assert.Equal(t, 1, ix.BestLevelForDownsample(10))
}

func TestBestLevelForSpacingExactMatch(t *testing.T) {
	ix := fourLevels(t)
	for k := 0; k < ix.Len(); k++ {
		s, err := ix.SpacingOf(k)
		require.NoError(t, err)
		level, ok := ix.BestLevelForSpacing(s, 0)
		assert.Equal(t, k, level)
		assert.True(t, ok)
	}
}

func TestBestLevelForSpacing(t *testing.T) {
	ix := fourLevels(t)

	tests := []struct {
		name      string
		target    float64
		tolerance float64
		level     int
		within    bool
	}{
		// Initial guess is level 0 (downsample 2 is closer to 1 than to 4);
		// 0.25 is 50% off and there is nothing finer to walk to.
		{"half micron falls back to level 0", 0.5, 0.1, 0, false},
		{"within tolerance of level 1", 1.05, 0.1, 1, true},
		// Guess is level 1 (spacing 1.0), finer than the target; no walk.
		{"coarser target keeps finer guess", 2.0, 0.1, 1, false},
		// Guess is level 2 (spacing 4.0) which is coarser than 3.0, so the
		// walk moves to level 1 to avoid upsampling.
		{"walk toward finer level", 3.0, 0.1, 1, false},
		{"generous tolerance accepts guess", 3.0, 0.34, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, ok := ix.BestLevelForSpacing(tt.target, tt.tolerance)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.within, ok)
		})
	}
}

func TestBestLevelForSpacingWalkFindsTolerance(t *testing.T) {
	// Spacings that do not track the downsamples: the downsample guess is
	// level 2 but level 1 is the one within tolerance.
	ix, err := NewIndex(
		[]float64{0.25, 2.9, 4.0},
		[]image.Point{{1600, 1600}, {400, 400}, {100, 100}},
	)
	require.NoError(t, err)

	level, ok := ix.BestLevelForSpacing(2.95, 0.05)
	assert.Equal(t, 1, level)
	assert.True(t, ok)
}

func TestResolveTileLevelWarnsOnce(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := NewToleranceWarner(logger)
	ix := fourLevels(t, WithWarner(w))

	level, ok := ix.ResolveTileLevel(0.5, 0.1)
	assert.Equal(t, 0, level)
	assert.False(t, ok)
	ix.ResolveTileLevel(0.5, 0.1)
	ix.ResolveTileLevel(3.0, 0.1)

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.True(t, w.Fired())

	// Within tolerance never warns, even after a reset.
	w.Reset()
	hook.Reset()
	ix.ResolveTileLevel(1.0, 0.1)
	assert.Empty(t, hook.AllEntries())
	assert.False(t, w.Fired())
}

func TestToleranceWarnerConcurrent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := NewToleranceWarner(logger)

	done := make(chan bool)
	for i := 0; i < 16; i++ {
		go func() {
			done <- w.Warn(0.5, 0.1, 0.25)
		}()
	}
	emitted := 0
	for i := 0; i < 16; i++ {
		if <-done {
			emitted++
		}
	}
	assert.Equal(t, 1, emitted)
	assert.Len(t, hook.AllEntries(), 1)
}
