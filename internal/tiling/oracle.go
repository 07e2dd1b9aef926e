package tiling

import (
	"image"
	"image/color"

	"wsi-tiler/internal/tissue"
	"wsi-tiler/pkg/geometry"

	"gocv.io/x/gocv"
)

// OracleInput is what a TissueOracle needs to judge one region's
// candidates. Outline and Holes are in mask pixels; a nil Outline means the
// whole mask. TileSize is in level-0 pixels and Scale maps mask pixels to
// level-0 pixels.
type OracleInput struct {
	Outline        geometry.Polygon
	Holes          []geometry.Polygon
	Mask           *tissue.Mask
	TileSize       int
	Scale          geometry.Scale2D
	MinTissueRatio float64
}

// TissueOracle decides for a batch of level-0 tile positions whether each
// holds enough tissue. Both returned slices are index-aligned with
// candidates.
type TissueOracle interface {
	CheckCoordinates(in OracleInput, candidates []geometry.PointInt) (keep []bool, ratios []float64)
}

// MaskOracle measures the tissue ratio of every tile against the mask
// restricted to the region outline minus its holes.
type MaskOracle struct{}

// CheckCoordinates implements TissueOracle. Tile area outside the mask
// counts as background.
func (MaskOracle) CheckCoordinates(in OracleInput, candidates []geometry.PointInt) ([]bool, []float64) {
	keep := make([]bool, len(candidates))
	ratios := make([]float64, len(candidates))
	if len(candidates) == 0 || in.Mask == nil {
		return keep, ratios
	}

	region, err := regionMat(in)
	if err != nil {
		return keep, ratios
	}
	defer region.Close()

	bounds := image.Rect(0, 0, in.Mask.Width, in.Mask.Height)
	tw := max(1, int(float64(in.TileSize)/in.Scale.X))
	th := max(1, int(float64(in.TileSize)/in.Scale.Y))
	area := float64(tw * th)

	for i, c := range candidates {
		x0 := int(float64(c.X) / in.Scale.X)
		y0 := int(float64(c.Y) / in.Scale.Y)
		win := image.Rect(x0, y0, x0+tw, y0+th).Intersect(bounds)
		if win.Empty() {
			continue
		}

		roi := region.Region(win)
		n := gocv.CountNonZero(roi)
		roi.Close()

		ratios[i] = float64(n) / area
		keep[i] = ratios[i] >= in.MinTissueRatio
	}
	return keep, ratios
}

// regionMat returns the mask restricted to the outline minus holes. The
// caller must Close it.
func regionMat(in OracleInput) (gocv.Mat, error) {
	mask, err := in.Mask.Mat()
	if err != nil {
		return gocv.Mat{}, err
	}
	if in.Outline == nil {
		return mask, nil
	}
	defer mask.Close()

	raster := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), in.Mask.Height, in.Mask.Width, gocv.MatTypeCV8UC1)
	defer raster.Close()

	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	outline := gocv.NewPointsVectorFromPoints([][]image.Point{in.Outline.ImagePoints()})
	defer outline.Close()
	gocv.FillPoly(&raster, outline, white)

	pts := make([][]image.Point, 0, len(in.Holes))
	for _, hole := range in.Holes {
		if len(hole) > 0 {
			pts = append(pts, hole.ImagePoints())
		}
	}
	if len(pts) > 0 {
		holes := gocv.NewPointsVectorFromPoints(pts)
		defer holes.Close()
		gocv.FillPoly(&raster, holes, color.RGBA{A: 255})
	}

	out := gocv.NewMat()
	gocv.BitwiseAnd(mask, raster, &out)
	return out, nil
}
