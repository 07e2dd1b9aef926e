// Package slide provides access to pyramidal whole-slide images.
//
// The tiler only needs level metadata and pixel reads, expressed by Reader.
// Stack is the bundled implementation: a set of pre-rendered level images
// described by a YAML manifest, or synthesised from a single base image.
package slide

import (
	"errors"
	"image"
)

// ErrNoLevels is returned when a slide has no pyramid levels.
var ErrNoLevels = errors.New("slide has no levels")

// Reader is a pyramidal image source.
type Reader interface {
	// Spacings returns the physical spacing (µm/px) of every level,
	// level 0 first.
	Spacings() []float64

	// LevelDimensions returns the pixel size of every level, level 0 first.
	LevelDimensions() []image.Point

	// SlideAtSpacing returns the whole slide rendered at spacing.
	SlideAtSpacing(spacing float64) (image.Image, error)

	// Patch returns a w x h region whose top-left corner is (x, y) in
	// level-0 pixels, rendered at spacing.
	Patch(x, y, w, h int, spacing float64) (image.Image, error)

	// Close releases any resources held by the reader.
	Close() error
}
