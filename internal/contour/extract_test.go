package contour

import (
	"image"
	"testing"

	"wsi-tiler/internal/pyramid"
	"wsi-tiler/internal/tissue"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// donutMask returns a 64x64 mask at level 1 with a tissue square covering
// [16,48) and a background hole covering [28,36), plus a 2x2 speck.
func donutMask(t *testing.T) *tissue.Mask {
	t.Helper()

	const size = 64
	pix := make([]uint8, size*size)
	for y := 16; y < 48; y++ {
		for x := 16; x < 48; x++ {
			if x >= 28 && x < 36 && y >= 28 && y < 36 {
				continue
			}
			pix[y*size+x] = tissue.Tissue
		}
	}
	for y := 2; y < 4; y++ {
		for x := 2; x < 4; x++ {
			pix[y*size+x] = tissue.Tissue
		}
	}

	m, err := tissue.NewMask(size, size, 1, pix)
	require.NoError(t, err)
	return m
}

func testIndex(t *testing.T) *pyramid.Index {
	t.Helper()
	ix, err := pyramid.NewIndex([]float64{1, 4}, []image.Point{{256, 256}, {64, 64}})
	require.NoError(t, err)
	return ix
}

func TestFindHierarchy(t *testing.T) {
	m := donutMask(t)
	mat, err := m.Mat()
	require.NoError(t, err)
	defer mat.Close()

	contours, hier := Find(mat)
	require.Len(t, contours, 3)
	require.Len(t, hier, 3)

	top, holes := 0, 0
	for _, h := range hier {
		if h.Parent == -1 {
			top++
		} else {
			holes++
			assert.Equal(t, -1, hier[h.Parent].Parent, "holes hang off a top-level contour")
		}
	}
	assert.Equal(t, 2, top)
	assert.Equal(t, 1, holes)

	for _, c := range contours {
		assert.InDelta(t, c.Points.Area(), c.Area, 1e-9)
	}
	assert.Contains(t, []float64{contours[0].Area, contours[1].Area, contours[2].Area}, 31.0*31.0,
		"outer square traced through pixel centres")
}

func TestExtractFiltersAndRescales(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := NewExtractor(testIndex(t), donutMask(t), logger)

	scale, err := e.Scale(1.0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, scale.X)
	assert.Equal(t, 4.0, scale.Y)

	// Reference area is 16*16/16 = 16 mask pixels; the speck has area 1.
	regions, err := e.Extract(1.0, 0, Thresholds{RefTileSize: 16, RegionArea: 0.5, HoleArea: 0, MaxHoles: 4})
	require.NoError(t, err)
	require.Len(t, regions, 1)

	bbox := regions[0].Outline.BoundingRect()
	assert.Equal(t, 64, bbox.X)
	assert.Equal(t, 64, bbox.Y)
	assert.Equal(t, 47*4, bbox.MaxX()-1)

	require.Len(t, regions[0].Holes, 1)
	hole := regions[0].Holes[0].BoundingRect()
	assert.True(t, bbox.Contains(hole))
	assert.Greater(t, hole.X, bbox.X)
}

func TestExtractDropsHolesBelowThreshold(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := NewExtractor(testIndex(t), donutMask(t), logger)

	regions, err := e.Extract(1.0, 0, Thresholds{RefTileSize: 16, RegionArea: 0.5, HoleArea: 100, MaxHoles: 4})
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Empty(t, regions[0].Holes)
}

func TestExtractAtCoarserSpacing(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e := NewExtractor(testIndex(t), donutMask(t), logger)

	// At the mask's own level the reference area is the full 16*16 tile. The
	// traced blob minus its hole covers 961-81 = 880 px.
	regions, err := e.Extract(4.0, 0, Thresholds{RefTileSize: 16, RegionArea: 3, MaxHoles: 4})
	require.NoError(t, err)
	assert.Len(t, regions, 1)

	regions, err = e.Extract(4.0, 0, Thresholds{RefTileSize: 16, RegionArea: 4, MaxHoles: 4})
	require.NoError(t, err)
	assert.Empty(t, regions)
}
