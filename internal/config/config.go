// Package config loads and saves run configuration for wsi-tiler. Files
// ending in .toml are read as TOML, everything else as YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"wsi-tiler/internal/tiling"
	"wsi-tiler/internal/tissue"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	Tiling       Tiling       `yaml:"tiling" toml:"tiling"`
	Filter       Filter       `yaml:"filter" toml:"filter"`
	Segmentation Segmentation `yaml:"segmentation" toml:"segmentation"`
	Mask         Mask         `yaml:"mask" toml:"mask"`
	Processing   Processing   `yaml:"processing" toml:"processing"`
}

// Tiling holds the per-request tile grid parameters.
type Tiling struct {
	// Spacing is the target resolution in µm per pixel
	Spacing float64 `yaml:"spacing" toml:"spacing"`

	// Tolerance is the allowed relative deviation from Spacing
	Tolerance float64 `yaml:"tolerance" toml:"tolerance"`

	TileSize       int     `yaml:"tileSize" toml:"tile_size"`
	Overlap        float64 `yaml:"overlap" toml:"overlap"`
	DropHoles      bool    `yaml:"dropHoles" toml:"drop_holes"`
	MinTissueRatio float64 `yaml:"minTissueRatio" toml:"min_tissue_ratio"`
	UsePadding     bool    `yaml:"usePadding" toml:"use_padding"`
}

// Filter holds the contour area filter, in reference tile areas.
type Filter struct {
	RefTileSize int     `yaml:"refTileSize" toml:"ref_tile_size"`
	RegionArea  float64 `yaml:"regionArea" toml:"region_area"`
	HoleArea    float64 `yaml:"holeArea" toml:"hole_area"`
	MaxHoles    int     `yaml:"maxHoles" toml:"max_holes"`
}

// Segmentation holds the tissue thresholding parameters.
type Segmentation struct {
	Downsample          float64 `yaml:"downsample" toml:"downsample"`
	SaturationThreshold int     `yaml:"saturationThreshold" toml:"saturation_threshold"`
	MedianKernel        int     `yaml:"medianKernel" toml:"median_kernel"`
	CloseKernel         int     `yaml:"closeKernel" toml:"close_kernel"`
	UseOtsu             bool    `yaml:"useOtsu" toml:"use_otsu"`
}

// Mask holds settings for precomputed tissue masks.
type Mask struct {
	TissueValue        int     `yaml:"tissueValue" toml:"tissue_value"`
	AlignmentTolerance float64 `yaml:"alignmentTolerance" toml:"alignment_tolerance"`
}

// Processing holds execution settings.
type Processing struct {
	// Workers is the number of regions tiled in parallel
	Workers int `yaml:"workers" toml:"workers"`

	// BaseSpacing overrides the level-0 spacing of the slide when > 0
	BaseSpacing float64 `yaml:"baseSpacing" toml:"base_spacing"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}

	cfg.Tiling.Spacing = 0.5
	cfg.Tiling.Tolerance = 0.07
	cfg.Tiling.TileSize = 224
	cfg.Tiling.Overlap = 0
	cfg.Tiling.DropHoles = false
	cfg.Tiling.MinTissueRatio = 0.25
	cfg.Tiling.UsePadding = true

	f := tiling.DefaultFilterConfig()
	cfg.Filter.RefTileSize = f.RefTileSize
	cfg.Filter.RegionArea = f.RegionAreaThreshold
	cfg.Filter.HoleArea = f.HoleAreaThreshold
	cfg.Filter.MaxHoles = f.MaxHoles

	seg := tissue.DefaultSegmentOptions()
	cfg.Segmentation.Downsample = seg.Downsample
	cfg.Segmentation.SaturationThreshold = seg.SaturationThreshold
	cfg.Segmentation.MedianKernel = seg.MedianKernel
	cfg.Segmentation.CloseKernel = seg.CloseKernel
	cfg.Segmentation.UseOtsu = seg.UseOtsu

	m := tissue.DefaultMaskOptions()
	cfg.Mask.TissueValue = int(m.TissueValue)
	cfg.Mask.AlignmentTolerance = m.AlignmentTolerance

	cfg.Processing.Workers = runtime.NumCPU()

	return cfg
}

// Load reads the configuration at path on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// TilingConfig returns the validated tiling request.
func (c *Config) TilingConfig() (tiling.Config, error) {
	t := c.Tiling
	return tiling.NewConfig(t.Spacing, t.Tolerance, t.TileSize, t.Overlap, t.DropHoles, t.MinTissueRatio, t.UsePadding)
}

// FilterConfig returns the validated contour filter.
func (c *Config) FilterConfig() (tiling.FilterConfig, error) {
	f := c.Filter
	return tiling.NewFilterConfig(f.RefTileSize, f.RegionArea, f.HoleArea, f.MaxHoles)
}

// SegmentOptions returns the segmentation parameters.
func (c *Config) SegmentOptions() (tissue.SegmentOptions, error) {
	s := c.Segmentation
	opts := tissue.DefaultSegmentOptions()
	opts.Downsample = s.Downsample
	opts.SaturationThreshold = s.SaturationThreshold
	opts.MedianKernel = s.MedianKernel
	opts.CloseKernel = s.CloseKernel
	opts.UseOtsu = s.UseOtsu
	return opts, opts.Validate()
}

// MaskOptions returns the precomputed mask settings.
func (c *Config) MaskOptions() (tissue.MaskOptions, error) {
	m := c.Mask
	if m.TissueValue < 0 || m.TissueValue > 255 {
		return tissue.MaskOptions{}, fmt.Errorf("mask tissue value must be in [0,255], got %d", m.TissueValue)
	}
	if m.AlignmentTolerance < 0 {
		return tissue.MaskOptions{}, fmt.Errorf("mask alignment tolerance must be >= 0, got %g", m.AlignmentTolerance)
	}
	return tissue.MaskOptions{
		TissueValue:        uint8(m.TissueValue),
		AlignmentTolerance: m.AlignmentTolerance,
	}, nil
}
