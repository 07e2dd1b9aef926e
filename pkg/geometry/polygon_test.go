package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func square(x, y, size int) Polygon {
	return Polygon{
		{X: x, Y: y},
		{X: x + size, Y: y},
		{X: x + size, Y: y + size},
		{X: x, Y: y + size},
	}
}

func TestPolygonArea(t *testing.T) {
	assert.InDelta(t, 100.0, square(0, 0, 10).Area(), 1e-9)

	// Reversed orientation yields the same area.
	sq := square(5, 5, 4)
	rev := make(Polygon, len(sq))
	for i := range sq {
		rev[i] = sq[len(sq)-1-i]
	}
	assert.InDelta(t, 16.0, rev.Area(), 1e-9)

	assert.Zero(t, Polygon{{X: 1, Y: 1}, {X: 2, Y: 2}}.Area())
}

func TestPolygonBoundingRect(t *testing.T) {
	r := square(10, 20, 99).BoundingRect()
	assert.Equal(t, RectInt{X: 10, Y: 20, Width: 100, Height: 100}, r)

	assert.Equal(t, RectInt{}, Polygon(nil).BoundingRect())
	assert.Equal(t, RectInt{X: 3, Y: 4, Width: 1, Height: 1}, Polygon{{X: 3, Y: 4}}.BoundingRect())
}

func TestPolygonScaleTruncates(t *testing.T) {
	p := Polygon{{X: 3, Y: 5}, {X: 7, Y: 9}}
	got := p.Scale(Scale2D{X: 0.5, Y: 2.5})
	assert.Equal(t, Polygon{{X: 1, Y: 12}, {X: 3, Y: 22}}, got)

	assert.Nil(t, Polygon(nil).Scale(Scale2D{X: 2, Y: 2}))
}

func TestPolygonContainsStrict(t *testing.T) {
	sq := square(0, 0, 10)

	tests := []struct {
		name string
		pt   Point2D
		want bool
	}{
		{"centre", Point2D{X: 5, Y: 5}, true},
		{"near corner", Point2D{X: 0.5, Y: 0.5}, true},
		{"on edge", Point2D{X: 0, Y: 5}, false},
		{"on vertex", Point2D{X: 10, Y: 10}, false},
		{"outside", Point2D{X: 11, Y: 5}, false},
		{"far outside", Point2D{X: -20, Y: -20}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sq.ContainsStrict(tt.pt))
		})
	}
}

func TestPolygonImagePointsRoundTrip(t *testing.T) {
	pts := []image.Point{{1, 2}, {3, 4}, {5, 6}}
	assert.Equal(t, pts, PolygonFromImagePoints(pts).ImagePoints())
}

func TestRectIntIntersect(t *testing.T) {
	a := RectInt{X: 0, Y: 0, Width: 10, Height: 10}
	b := RectInt{X: 5, Y: 8, Width: 10, Height: 10}
	assert.Equal(t, RectInt{X: 5, Y: 8, Width: 5, Height: 2}, a.Intersect(b))
	assert.True(t, a.Intersect(RectInt{X: 20, Y: 20, Width: 1, Height: 1}).Empty())
	assert.True(t, a.Contains(RectInt{X: 1, Y: 1, Width: 9, Height: 9}))
	assert.False(t, a.Contains(b))
}
