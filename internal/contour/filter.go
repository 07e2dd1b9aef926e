// Package contour extracts tissue regions and their holes from a binary
// tissue mask.
package contour

import (
	"sort"

	"wsi-tiler/pkg/geometry"
)

// Hierarchy is one entry of a two-level contour hierarchy. Indices refer to
// positions in the contour slice; -1 means none.
type Hierarchy struct {
	Next       int
	Prev       int
	FirstChild int
	Parent     int
}

// Contour is one traced boundary in mask pixels with its enclosed area.
type Contour struct {
	Points geometry.Polygon
	Area   float64
}

// Region is a tissue outline with the holes nested directly inside it.
type Region struct {
	Outline geometry.Polygon
	Holes   []geometry.Polygon
}

// Thresholds are area limits expressed in units of the reference tile area.
type Thresholds struct {
	RefTileSize int     // reference tile edge, in target-level pixels
	RegionArea  float64 // minimum net region area, in reference tiles
	HoleArea    float64 // minimum hole area, in reference tiles
	MaxHoles    int     // holes kept per region
}

// Limits are absolute area limits in mask pixels.
type Limits struct {
	RegionArea float64
	HoleArea   float64
	MaxHoles   int
}

// Scaled converts the thresholds to mask pixels. scale maps mask pixels to
// target-level pixels per axis.
func (t Thresholds) Scaled(scale geometry.Scale2D) Limits {
	refArea := float64(int(float64(t.RefTileSize*t.RefTileSize) / (scale.X * scale.Y)))
	return Limits{
		RegionArea: t.RegionArea * refArea,
		HoleArea:   t.HoleArea * refArea,
		MaxHoles:   t.MaxHoles,
	}
}

// Filter keeps the top-level contours whose area net of their direct holes
// is positive and exceeds lim.RegionArea. For each kept contour the
// MaxHoles largest holes are considered and those larger than lim.HoleArea
// are retained. Contours nested deeper than one level are ignored.
func Filter(contours []Contour, hierarchy []Hierarchy, lim Limits) []Region {
	if len(contours) == 0 || len(hierarchy) != len(contours) {
		return nil
	}

	areas := make([]float64, len(contours))
	for i, c := range contours {
		areas[i] = c.Area
	}

	var regions []Region
	for idx, h := range hierarchy {
		if h.Parent != -1 {
			continue
		}

		var holes []int
		for j, hh := range hierarchy {
			if hh.Parent == idx {
				holes = append(holes, j)
			}
		}

		net := areas[idx]
		for _, j := range holes {
			net -= areas[j]
		}
		if net <= 0 || net <= lim.RegionArea {
			continue
		}

		sort.SliceStable(holes, func(a, b int) bool {
			return areas[holes[a]] > areas[holes[b]]
		})
		if len(holes) > lim.MaxHoles {
			holes = holes[:lim.MaxHoles]
		}

		region := Region{Outline: contours[idx].Points}
		for _, j := range holes {
			if areas[j] > lim.HoleArea {
				region.Holes = append(region.Holes, contours[j].Points)
			}
		}
		regions = append(regions, region)
	}
	return regions
}

// Rescale multiplies every outline and hole by s with integer truncation.
func Rescale(regions []Region, s geometry.Scale2D) []Region {
	out := make([]Region, len(regions))
	for i, r := range regions {
		out[i].Outline = r.Outline.Scale(s)
		if len(r.Holes) > 0 {
			out[i].Holes = make([]geometry.Polygon, len(r.Holes))
			for j, h := range r.Holes {
				out[i].Holes[j] = h.Scale(s)
			}
		}
	}
	return out
}
