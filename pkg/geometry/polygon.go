package geometry

import (
	"image"
	"math"
)

// Polygon is a closed ring of integer vertices. The last vertex connects
// back to the first; it is not repeated.
type Polygon []PointInt

// PolygonFromImagePoints builds a Polygon from OpenCV-style contour points.
func PolygonFromImagePoints(pts []image.Point) Polygon {
	poly := make(Polygon, len(pts))
	for i, p := range pts {
		poly[i] = PointInt{X: p.X, Y: p.Y}
	}
	return poly
}

// ImagePoints returns the vertices as image.Points.
func (poly Polygon) ImagePoints() []image.Point {
	pts := make([]image.Point, len(poly))
	for i, p := range poly {
		pts[i] = p.ToImage()
	}
	return pts
}

// Area returns the enclosed area using the shoelace formula. Orientation
// is ignored, so clockwise and counter-clockwise rings give the same value.
func (poly Polygon) Area() float64 {
	n := len(poly)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += float64(poly[i].X)*float64(poly[j].Y) - float64(poly[j].X)*float64(poly[i].Y)
	}
	return math.Abs(sum) / 2
}

// BoundingRect returns the smallest upright rectangle containing every
// vertex. Width and height count pixels, so a single point has size 1x1.
func (poly Polygon) BoundingRect() RectInt {
	if len(poly) == 0 {
		return RectInt{}
	}
	minX, minY := poly[0].X, poly[0].Y
	maxX, maxY := minX, minY
	for _, p := range poly[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return RectInt{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
}

// Scale multiplies every vertex by s, truncating toward zero.
func (poly Polygon) Scale(s Scale2D) Polygon {
	if poly == nil {
		return nil
	}
	out := make(Polygon, len(poly))
	for i, p := range poly {
		out[i] = PointInt{
			X: int(float64(p.X) * s.X),
			Y: int(float64(p.Y) * s.Y),
		}
	}
	return out
}

// ContainsStrict reports whether p lies strictly inside the polygon.
// Points on an edge or vertex are not contained.
func (poly Polygon) ContainsStrict(p Point2D) bool {
	if len(poly) < 3 {
		return false
	}
	if poly.onBoundary(p) {
		return false
	}
	return PointInPolygon(p, poly)
}

func (poly Polygon) onBoundary(p Point2D) bool {
	n := len(poly)
	for i := 0; i < n; i++ {
		a := poly[i].ToFloat()
		b := poly[(i+1)%n].ToFloat()
		if crossProduct(a, b, p) != 0 {
			continue
		}
		if p.X >= math.Min(a.X, b.X) && p.X <= math.Max(a.X, b.X) &&
			p.Y >= math.Min(a.Y, b.Y) && p.Y <= math.Max(a.Y, b.Y) {
			return true
		}
	}
	return false
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
// Boundary points may report either result; use ContainsStrict when the
// boundary matters.
func PointInPolygon(p Point2D, polygon Polygon) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i].ToFloat(), polygon[j].ToFloat()

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
