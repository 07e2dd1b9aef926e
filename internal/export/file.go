// Package export persists tiling results as JSON tile files or in a
// SQLite tile database.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wsi-tiler/internal/tiling"
)

// FileVersion is the current tile file format version.
const FileVersion = 1

// File is a tile coordinate file (.json).
type File struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`

	// Slide paths (relative to the tile file)
	SlidePath string `json:"slide"`
	MaskPath  string `json:"mask,omitempty"`

	Tiling tiling.Config       `json:"tiling"`
	Filter tiling.FilterConfig `json:"filter"`

	TileLevel      int                     `json:"tile_level"`
	ResizeFactor   float64                 `json:"resize_factor"`
	TileSizeLevel0 int                     `json:"tile_size_level0"`
	Tiles          []tiling.TileCoordinate `json:"tiles"`
}

// New creates a tile file for one tiling result.
func New(cfg tiling.Config, filter tiling.FilterConfig, res *tiling.Result) *File {
	f := &File{
		Version:   FileVersion,
		Created:   time.Now().UTC(),
		Tiling:    cfg,
		Filter:    filter,
		TileLevel: tiling.NoLevel,
	}
	if res != nil {
		f.TileLevel = res.TileLevel
		f.ResizeFactor = res.ResizeFactor
		f.TileSizeLevel0 = res.TileSizeLevel0
		f.Tiles = res.Coordinates
	}
	if f.Tiles == nil {
		f.Tiles = []tiling.TileCoordinate{}
	}
	return f
}

// Load reads a tile file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse tile file %s: %w", path, err)
	}
	if f.Version > FileVersion {
		return nil, fmt.Errorf("tile file %s has version %d, newest supported is %d", path, f.Version, FileVersion)
	}
	return &f, nil
}

// Save writes the tile file to path.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SetSlide records the slide path relative to the tile file.
func (f *File) SetSlide(filePath, slidePath string) {
	f.SlidePath = relativeTo(filePath, slidePath)
}

// SetMask records the mask path relative to the tile file.
func (f *File) SetMask(filePath, maskPath string) {
	f.MaskPath = relativeTo(filePath, maskPath)
}

// GetSlidePath returns the absolute path to the slide.
func (f *File) GetSlidePath(filePath string) string {
	return resolve(filePath, f.SlidePath)
}

// GetMaskPath returns the absolute path to the mask, or "" if none.
func (f *File) GetMaskPath(filePath string) string {
	return resolve(filePath, f.MaskPath)
}

func relativeTo(filePath, target string) string {
	if target == "" {
		return ""
	}
	rel, err := filepath.Rel(filepath.Dir(filePath), target)
	if err != nil {
		return target
	}
	return rel
}

func resolve(filePath, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(filePath), p)
}
