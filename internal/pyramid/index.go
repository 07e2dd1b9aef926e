// Package pyramid describes the resolution levels of a whole-slide image and
// resolves which level best serves a requested physical spacing.
package pyramid

import (
	"errors"
	"fmt"
	"image"
	"math"

	"wsi-tiler/pkg/geometry"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrLevelOutOfRange is returned when a level index does not exist.
	ErrLevelOutOfRange = errors.New("pyramid level out of range")

	// ErrInvalidPyramid is returned when level metadata violates the pyramid invariants.
	ErrInvalidPyramid = errors.New("invalid pyramid")
)

// Downsample is the per-axis ratio of the level-0 dimension to a level's
// dimension. The axes are kept separate because level sizes are rounded
// independently and the aspect ratio is not guaranteed to survive.
type Downsample = geometry.Scale2D

// Level holds the metadata of one pyramid level.
type Level struct {
	Index      int         `json:"index"`
	Spacing    float64     `json:"spacing"`    // physical units (µm) per pixel
	Dimensions image.Point `json:"dimensions"` // X = width, Y = height
	Downsample Downsample  `json:"downsample"`
}

// Index is the immutable level table of a slide. It is safe for concurrent
// use; the only mutable collaborator is the optional ToleranceWarner, which
// does its own locking.
type Index struct {
	levels []Level
	warner *ToleranceWarner

	// representative (x-axis) downsample per level, used for argmin lookups
	scalars []float64
}

// Option configures an Index.
type Option func(*indexOptions)

type indexOptions struct {
	baseSpacing float64
	warner      *ToleranceWarner
}

// WithBaseSpacing overrides the level-0 spacing. Every other level is
// rescaled by the same factor so that the ratios reported by the reader
// are preserved.
func WithBaseSpacing(spacing float64) Option {
	return func(o *indexOptions) {
		o.baseSpacing = spacing
	}
}

// WithWarner attaches the diagnostic fired when a spacing cannot be met
// within tolerance.
func WithWarner(w *ToleranceWarner) Option {
	return func(o *indexOptions) {
		o.warner = w
	}
}

// NewIndex builds an Index from per-level spacings and pixel dimensions,
// both ordered from the highest resolution (level 0) downwards.
func NewIndex(spacings []float64, dims []image.Point, opts ...Option) (*Index, error) {
	var o indexOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(spacings) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrInvalidPyramid)
	}
	if len(spacings) != len(dims) {
		return nil, fmt.Errorf("%w: %d spacings but %d level dimensions",
			ErrInvalidPyramid, len(spacings), len(dims))
	}

	rescale := 1.0
	if o.baseSpacing > 0 {
		if spacings[0] <= 0 {
			return nil, fmt.Errorf("%w: level 0 spacing %g", ErrInvalidPyramid, spacings[0])
		}
		rescale = o.baseSpacing / spacings[0]
	}

	dim0 := dims[0]
	levels := make([]Level, len(spacings))
	scalars := make([]float64, len(spacings))
	for i, s := range spacings {
		d := dims[i]
		if d.X <= 0 || d.Y <= 0 {
			return nil, fmt.Errorf("%w: level %d has dimensions %dx%d", ErrInvalidPyramid, i, d.X, d.Y)
		}
		s *= rescale
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: level %d has spacing %g", ErrInvalidPyramid, i, s)
		}
		if i > 0 && s < levels[i-1].Spacing {
			return nil, fmt.Errorf("%w: spacing decreases from level %d (%g) to level %d (%g)",
				ErrInvalidPyramid, i-1, levels[i-1].Spacing, i, s)
		}
		ds := Downsample{
			X: float64(dim0.X) / float64(d.X),
			Y: float64(dim0.Y) / float64(d.Y),
		}
		if i > 0 && (ds.X < 1 || ds.Y < 1) {
			return nil, fmt.Errorf("%w: level %d is larger than level 0", ErrInvalidPyramid, i)
		}
		levels[i] = Level{Index: i, Spacing: s, Dimensions: d, Downsample: ds}
		scalars[i] = ds.X
	}

	return &Index{levels: levels, warner: o.warner, scalars: scalars}, nil
}

// Len returns the number of levels.
func (ix *Index) Len() int {
	return len(ix.levels)
}

// Levels returns a copy of the level table.
func (ix *Index) Levels() []Level {
	out := make([]Level, len(ix.levels))
	copy(out, ix.levels)
	return out
}

// Level returns the metadata of one level.
func (ix *Index) Level(level int) (Level, error) {
	if level < 0 || level >= len(ix.levels) {
		return Level{}, fmt.Errorf("%w: %d (have %d levels)", ErrLevelOutOfRange, level, len(ix.levels))
	}
	return ix.levels[level], nil
}

// SpacingOf returns the spacing of a level.
func (ix *Index) SpacingOf(level int) (float64, error) {
	l, err := ix.Level(level)
	if err != nil {
		return 0, err
	}
	return l.Spacing, nil
}

// DownsampleOf returns the axis-wise downsample of a level relative to level 0.
func (ix *Index) DownsampleOf(level int) (Downsample, error) {
	l, err := ix.Level(level)
	if err != nil {
		return Downsample{}, err
	}
	return l.Downsample, nil
}

// Dimensions returns the pixel dimensions of a level.
func (ix *Index) Dimensions(level int) (image.Point, error) {
	l, err := ix.Level(level)
	if err != nil {
		return image.Point{}, err
	}
	return l.Dimensions, nil
}

// BestLevelForDownsample returns the level whose x-axis downsample is
// closest to target. Ties go to the lowest level index.
func (ix *Index) BestLevelForDownsample(target float64) int {
	return ClosestIndex(ix.scalars, target)
}

// BestLevelForSpacing returns the level that serves targetSpacing and
// whether that level's spacing lies within tolerance (relative error).
//
// The initial guess comes from BestLevelForDownsample. When it misses the
// tolerance the search moves toward level 0 while the level is coarser than
// the target, so the caller never has to upsample. It never moves to a
// coarser level than the initial guess.
func (ix *Index) BestLevelForSpacing(targetSpacing, tolerance float64) (int, bool) {
	level := ix.BestLevelForDownsample(targetSpacing / ix.levels[0].Spacing)
	spacing := ix.levels[level].Spacing

	if withinTolerance(spacing, targetSpacing, tolerance) {
		return level, true
	}

	for level > 0 && spacing > targetSpacing {
		level--
		spacing = ix.levels[level].Spacing
		if withinTolerance(spacing, targetSpacing, tolerance) {
			return level, true
		}
	}

	return level, false
}

// ResolveTileLevel behaves like BestLevelForSpacing but reports a tolerance
// miss through the attached ToleranceWarner.
func (ix *Index) ResolveTileLevel(targetSpacing, tolerance float64) (int, bool) {
	level, ok := ix.BestLevelForSpacing(targetSpacing, tolerance)
	if !ok && ix.warner != nil {
		ix.warner.Warn(targetSpacing, tolerance, ix.levels[level].Spacing)
	}
	return level, ok
}

func withinTolerance(spacing, target, tolerance float64) bool {
	return math.Abs(spacing-target)/target <= tolerance
}

// ClosestIndex returns the index of the value nearest to target, preferring
// the first on ties. values must not be empty.
func ClosestIndex(values []float64, target float64) int {
	diffs := make([]float64, len(values))
	for i, v := range values {
		diffs[i] = math.Abs(v - target)
	}
	return floats.MinIdx(diffs)
}
