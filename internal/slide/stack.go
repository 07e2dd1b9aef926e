package slide

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"wsi-tiler/internal/pyramid"

	"github.com/disintegration/imaging"
)

// Stack is an in-memory pyramid: one decoded image per level.
type Stack struct {
	Path string // manifest the stack was loaded from, if any

	levels   []image.Image
	spacings []float64
	dims     []image.Point
}

// NewStack wraps already decoded level images. levels and spacings are
// ordered from level 0 (highest resolution) downwards.
func NewStack(levels []image.Image, spacings []float64) (*Stack, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}
	if len(levels) != len(spacings) {
		return nil, fmt.Errorf("got %d levels but %d spacings", len(levels), len(spacings))
	}

	dims := make([]image.Point, len(levels))
	for i, img := range levels {
		if img == nil {
			return nil, fmt.Errorf("level %d is nil", i)
		}
		dims[i] = img.Bounds().Size()
	}

	return &Stack{
		levels:   append([]image.Image(nil), levels...),
		spacings: append([]float64(nil), spacings...),
		dims:     dims,
	}, nil
}

// Build synthesises a pyramid from a single base image. Each entry of
// downsamples produces one level whose size is the base size divided by
// that factor; the first entry should be 1.
func Build(base image.Image, spacing float64, downsamples []int) (*Stack, error) {
	if base == nil {
		return nil, fmt.Errorf("nil base image")
	}
	if len(downsamples) == 0 {
		return nil, ErrNoLevels
	}

	size := base.Bounds().Size()
	levels := make([]image.Image, 0, len(downsamples))
	spacings := make([]float64, 0, len(downsamples))

	for i, ds := range downsamples {
		if ds < 1 {
			return nil, fmt.Errorf("level %d: invalid downsample %d", i, ds)
		}
		if ds == 1 {
			levels = append(levels, base)
		} else {
			w := max(1, size.X/ds)
			h := max(1, size.Y/ds)
			levels = append(levels, imaging.Resize(base, w, h, imaging.Box))
		}
		spacings = append(spacings, spacing*float64(ds))
	}

	return NewStack(levels, spacings)
}

// Spacings returns a copy of the level spacings.
func (s *Stack) Spacings() []float64 {
	return append([]float64(nil), s.spacings...)
}

// LevelDimensions returns a copy of the level dimensions.
func (s *Stack) LevelDimensions() []image.Point {
	return append([]image.Point(nil), s.dims...)
}

// Level returns the decoded image of one level.
func (s *Stack) Level(level int) (image.Image, error) {
	if level < 0 || level >= len(s.levels) {
		return nil, fmt.Errorf("%w: %d", pyramid.ErrLevelOutOfRange, level)
	}
	return s.levels[level], nil
}

// SlideAtSpacing returns the level closest to spacing. If that level's
// spacing differs from the request the image is resized to match.
func (s *Stack) SlideAtSpacing(spacing float64) (image.Image, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("invalid spacing %g", spacing)
	}
	level := pyramid.ClosestIndex(s.spacings, spacing)
	img := s.levels[level]

	ratio := s.spacings[level] / spacing
	if sameSpacing(ratio) {
		return img, nil
	}
	w := max(1, int(math.Round(float64(s.dims[level].X)*ratio)))
	h := max(1, int(math.Round(float64(s.dims[level].Y)*ratio)))
	return imaging.Resize(img, w, h, imaging.Box), nil
}

// Patch reads a w x h region at spacing. (x, y) is in level-0 pixels.
// Areas outside the slide are returned transparent.
func (s *Stack) Patch(x, y, w, h int, spacing float64) (image.Image, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid patch size %dx%d", w, h)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("invalid spacing %g", spacing)
	}

	level := pyramid.ClosestIndex(s.spacings, spacing)
	img := s.levels[level]
	dim0 := s.dims[0]
	dsX := float64(dim0.X) / float64(s.dims[level].X)
	dsY := float64(dim0.Y) / float64(s.dims[level].Y)

	// Size of the requested area in the source level's pixels.
	ratio := spacing / s.spacings[level]
	srcW := max(1, int(math.Round(float64(w)*ratio)))
	srcH := max(1, int(math.Round(float64(h)*ratio)))

	lx := int(float64(x) / dsX)
	ly := int(float64(y) / dsY)
	b := img.Bounds()
	region := image.Rect(b.Min.X+lx, b.Min.Y+ly, b.Min.X+lx+srcW, b.Min.Y+ly+srcH)

	canvas := imaging.New(srcW, srcH, color.NRGBA{})
	if visible := region.Intersect(b); !visible.Empty() {
		crop := imaging.Crop(img, visible)
		canvas = imaging.Paste(canvas, crop, visible.Min.Sub(region.Min))
	}

	if srcW == w && srcH == h {
		return canvas, nil
	}
	return imaging.Resize(canvas, w, h, imaging.Box), nil
}

// Close is a no-op; decoded levels are garbage collected.
func (s *Stack) Close() error {
	return nil
}

func sameSpacing(ratio float64) bool {
	return math.Abs(ratio-1) < 1e-6
}
