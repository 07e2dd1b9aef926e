// Package geometry provides basic geometric types used throughout the tiler.
package geometry

import (
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PointInt represents a 2D point with integer coordinates.
type PointInt struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ToFloat converts to Point2D.
func (p PointInt) ToFloat() Point2D {
	return Point2D{X: float64(p.X), Y: float64(p.Y)}
}

// ToImage converts to an image.Point.
func (p PointInt) ToImage() image.Point {
	return image.Point{X: p.X, Y: p.Y}
}

// FromImagePoint converts an image.Point.
func FromImagePoint(p image.Point) PointInt {
	return PointInt{X: p.X, Y: p.Y}
}

// RectInt represents a rectangle with integer coordinates.
type RectInt struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rectangle covers no pixels.
func (r RectInt) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// MaxX returns the exclusive right edge.
func (r RectInt) MaxX() int { return r.X + r.Width }

// MaxY returns the exclusive bottom edge.
func (r RectInt) MaxY() int { return r.Y + r.Height }

// Contains returns true if the rectangle fully contains other.
func (r RectInt) Contains(other RectInt) bool {
	return other.X >= r.X && other.Y >= r.Y &&
		other.MaxX() <= r.MaxX() && other.MaxY() <= r.MaxY()
}

// Intersect returns the overlap of two rectangles; the result is empty
// when they do not overlap.
func (r RectInt) Intersect(other RectInt) RectInt {
	x0 := max(r.X, other.X)
	y0 := max(r.Y, other.Y)
	x1 := min(r.MaxX(), other.MaxX())
	y1 := min(r.MaxY(), other.MaxY())
	if x1 <= x0 || y1 <= y0 {
		return RectInt{}
	}
	return RectInt{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Scale2D holds independent per-axis scale factors.
type Scale2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Inverse returns the reciprocal scale.
func (s Scale2D) Inverse() Scale2D {
	return Scale2D{X: 1 / s.X, Y: 1 / s.Y}
}
