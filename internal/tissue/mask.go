// Package tissue segments tissue from background and holds the resulting
// binary mask.
package tissue

import (
	"fmt"

	"wsi-tiler/pkg/geometry"

	"gocv.io/x/gocv"
)

// Tissue and Background are the only values stored in a Mask.
const (
	Background uint8 = 0
	Tissue     uint8 = 255
)

// Mask is a binary tissue mask at one pyramid level. It is never modified
// after construction and can be read from many goroutines at once.
type Mask struct {
	Width  int
	Height int
	Level  int // pyramid level the mask was computed at

	pix []uint8 // row-major, Tissue or Background
}

// NewMask wraps a row-major pixel buffer. Any non-zero value is stored as
// Tissue.
func NewMask(width, height, level int, pix []uint8) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask size %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("mask buffer has %d bytes, want %d", len(pix), width*height)
	}
	norm := make([]uint8, len(pix))
	for i, v := range pix {
		if v != 0 {
			norm[i] = Tissue
		}
	}
	return &Mask{Width: width, Height: height, Level: level, pix: norm}, nil
}

// maskFromMat copies a single-channel 8-bit Mat into a Mask.
func maskFromMat(m gocv.Mat, level int) (*Mask, error) {
	if m.Empty() {
		return nil, fmt.Errorf("empty mask")
	}
	if m.Channels() != 1 {
		return nil, fmt.Errorf("mask has %d channels, want 1", m.Channels())
	}
	return NewMask(m.Cols(), m.Rows(), level, m.ToBytes())
}

// At reports whether (x, y) is tissue. Out-of-bounds pixels are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.pix[y*m.Width+x] == Tissue
}

// Pix returns the underlying buffer. Callers must not modify it.
func (m *Mask) Pix() []uint8 {
	return m.pix
}

// Bounds returns the mask extent.
func (m *Mask) Bounds() geometry.RectInt {
	return geometry.RectInt{Width: m.Width, Height: m.Height}
}

// TissueFraction returns the share of tissue pixels in the whole mask.
func (m *Mask) TissueFraction() float64 {
	n := 0
	for _, v := range m.pix {
		if v == Tissue {
			n++
		}
	}
	return float64(n) / float64(len(m.pix))
}

// Mat returns a new single-channel Mat holding a copy of the mask. The
// caller must Close it.
func (m *Mask) Mat() (gocv.Mat, error) {
	return ownedMat(m.Height, m.Width, m.pix)
}

// ownedMat copies buf into OpenCV-owned memory so the Mat does not alias
// Go memory.
func ownedMat(rows, cols int, buf []byte) (gocv.Mat, error) {
	view, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, buf)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer view.Close()
	return view.Clone(), nil
}
