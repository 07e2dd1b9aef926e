// Package tiling lays out tile grids over tissue regions and selects the
// tiles that hold enough tissue.
package tiling

import (
	"errors"
	"fmt"

	"wsi-tiler/internal/contour"
)

var (
	// ErrInvalidConfig is returned for out-of-range tiling or filter values.
	ErrInvalidConfig = errors.New("invalid tiling config")
	// ErrDegenerateStep is returned when tile size and overlap leave no
	// forward step between tiles.
	ErrDegenerateStep = errors.New("tile step size is less than one pixel")
	// ErrInconsistentTileLevel is returned when regions of one request
	// resolve to different pyramid levels.
	ErrInconsistentTileLevel = errors.New("tile level differs between regions")
)

// Config describes one tiling request.
type Config struct {
	Spacing        float64 `json:"spacing"`          // target spacing, physical units per pixel
	Tolerance      float64 `json:"tolerance"`        // allowed relative spacing error
	TileSize       int     `json:"tile_size"`        // tile edge in pixels at the target spacing
	Overlap        float64 `json:"overlap"`          // fraction of the tile shared with its neighbour
	DropHoles      bool    `json:"drop_holes"`       // discard tiles centred inside a hole
	MinTissueRatio float64 `json:"min_tissue_ratio"` // minimum tissue fraction of a kept tile
	UsePadding     bool    `json:"use_padding"`      // allow partial tiles at the slide edge
}

// NewConfig validates and returns a Config.
func NewConfig(spacing, tolerance float64, tileSize int, overlap float64, dropHoles bool, minTissueRatio float64, usePadding bool) (Config, error) {
	c := Config{
		Spacing:        spacing,
		Tolerance:      tolerance,
		TileSize:       tileSize,
		Overlap:        overlap,
		DropHoles:      dropHoles,
		MinTissueRatio: minTissueRatio,
		UsePadding:     usePadding,
	}
	return c, c.Validate()
}

// Validate checks every field range.
func (c Config) Validate() error {
	switch {
	case c.Spacing <= 0:
		return fmt.Errorf("%w: spacing must be > 0, got %g", ErrInvalidConfig, c.Spacing)
	case c.Tolerance < 0 || c.Tolerance > 1:
		return fmt.Errorf("%w: tolerance must be in [0,1], got %g", ErrInvalidConfig, c.Tolerance)
	case c.TileSize <= 0:
		return fmt.Errorf("%w: tile size must be > 0, got %d", ErrInvalidConfig, c.TileSize)
	case c.Overlap < 0 || c.Overlap >= 1:
		return fmt.Errorf("%w: overlap must be in [0,1), got %g", ErrInvalidConfig, c.Overlap)
	case c.MinTissueRatio < 0 || c.MinTissueRatio > 1:
		return fmt.Errorf("%w: min tissue ratio must be in [0,1], got %g", ErrInvalidConfig, c.MinTissueRatio)
	}
	return nil
}

// FilterConfig holds the contour area filter. Areas are in units of the
// reference tile area.
type FilterConfig struct {
	RefTileSize         int     `json:"ref_tile_size"`
	RegionAreaThreshold float64 `json:"region_area_threshold"`
	HoleAreaThreshold   float64 `json:"hole_area_threshold"`
	MaxHoles            int     `json:"max_holes"`
}

// DefaultFilterConfig returns the usual H&E contour filter.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		RefTileSize:         16,
		RegionAreaThreshold: 4,
		HoleAreaThreshold:   2,
		MaxHoles:            8,
	}
}

// NewFilterConfig validates and returns a FilterConfig.
func NewFilterConfig(refTileSize int, regionArea, holeArea float64, maxHoles int) (FilterConfig, error) {
	f := FilterConfig{
		RefTileSize:         refTileSize,
		RegionAreaThreshold: regionArea,
		HoleAreaThreshold:   holeArea,
		MaxHoles:            maxHoles,
	}
	return f, f.Validate()
}

// Validate checks every field range.
func (f FilterConfig) Validate() error {
	switch {
	case f.RefTileSize <= 0:
		return fmt.Errorf("%w: reference tile size must be > 0, got %d", ErrInvalidConfig, f.RefTileSize)
	case f.RegionAreaThreshold < 0:
		return fmt.Errorf("%w: region area threshold must be >= 0, got %g", ErrInvalidConfig, f.RegionAreaThreshold)
	case f.HoleAreaThreshold < 0:
		return fmt.Errorf("%w: hole area threshold must be >= 0, got %g", ErrInvalidConfig, f.HoleAreaThreshold)
	case f.MaxHoles < 0:
		return fmt.Errorf("%w: max holes must be >= 0, got %d", ErrInvalidConfig, f.MaxHoles)
	}
	return nil
}

// Thresholds converts the filter for contour extraction.
func (f FilterConfig) Thresholds() contour.Thresholds {
	return contour.Thresholds{
		RefTileSize: f.RefTileSize,
		RegionArea:  f.RegionAreaThreshold,
		HoleArea:    f.HoleAreaThreshold,
		MaxHoles:    f.MaxHoles,
	}
}
