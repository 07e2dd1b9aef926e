package tiling

import (
	"image"

	"wsi-tiler/internal/contour"
	"wsi-tiler/internal/pyramid"
	"wsi-tiler/internal/tissue"
	"wsi-tiler/pkg/geometry"
)

// NoLevel marks a region result that holds no tiles.
const NoLevel = -1

// TileCoordinate is one kept tile. X and Y are the top-left corner in
// level-0 pixels.
type TileCoordinate struct {
	X            int     `json:"x"`
	Y            int     `json:"y"`
	TissueRatio  float64 `json:"tissue_ratio"`
	Level        int     `json:"level"`
	ResizeFactor float64 `json:"resize_factor"`
}

// RegionResult holds the tiles of one region. Empty results carry NoLevel
// and a zero resize factor.
type RegionResult struct {
	Coordinates  []TileCoordinate
	TileLevel    int
	ResizeFactor float64
}

// Empty reports whether the region produced no tiles.
func (r RegionResult) Empty() bool {
	return len(r.Coordinates) == 0
}

// plan is the per-request grid geometry derived from the pyramid.
type plan struct {
	level        int
	resize       float64
	tileResized  int         // tile edge at the tile level
	step         int         // step at the tile level
	tileDS       image.Point // integer tile-level downsample
	refTile      image.Point // tile edge in level-0 pixels
	refStep      image.Point // step in level-0 pixels
	level0Extent image.Point
}

func newPlan(ix *pyramid.Index, cfg Config) (plan, error) {
	level, within := ix.ResolveTileLevel(cfg.Spacing, cfg.Tolerance)
	spacing, err := ix.SpacingOf(level)
	if err != nil {
		return plan{}, err
	}
	ds, err := ix.DownsampleOf(level)
	if err != nil {
		return plan{}, err
	}
	dim0, err := ix.Dimensions(0)
	if err != nil {
		return plan{}, err
	}

	p := plan{level: level, resize: 1}
	if !within {
		p.resize = cfg.Spacing / spacing
	}
	p.tileResized = int(float64(cfg.TileSize) * p.resize)
	p.step = int(float64(p.tileResized) * (1 - cfg.Overlap))
	p.tileDS = image.Pt(int(ds.X), int(ds.Y))
	p.refTile = image.Pt(p.tileResized*p.tileDS.X, p.tileResized*p.tileDS.Y)
	p.refStep = image.Pt(p.step*p.tileDS.X, p.step*p.tileDS.Y)
	p.level0Extent = dim0
	return p, nil
}

// degenerate reports whether the grid would not advance.
func (p plan) degenerate() bool {
	return p.refStep.X < 1 || p.refStep.Y < 1
}

// generator lays out and filters the tile grid of single regions.
type generator struct {
	index  *pyramid.Index
	mask   *tissue.Mask
	oracle TissueOracle
	cfg    Config
}

// region tiles one region. A nil region tiles the whole slide.
func (g *generator) region(r *contour.Region) RegionResult {
	p, err := newPlan(g.index, g.cfg)
	if err != nil || p.degenerate() {
		return RegionResult{TileLevel: NoLevel}
	}

	var bbox geometry.RectInt
	var outline geometry.Polygon
	var holes []geometry.Polygon
	if r != nil {
		bbox = r.Outline.BoundingRect()
		outline = r.Outline
		holes = r.Holes
	} else {
		bbox = geometry.RectInt{Width: p.level0Extent.X, Height: p.level0Extent.Y}
	}

	stopX := bbox.X + bbox.Width
	stopY := bbox.Y + bbox.Height
	if !g.cfg.UsePadding {
		stopX = min(stopX, p.level0Extent.X-p.refTile.X+1)
		stopY = min(stopY, p.level0Extent.Y-p.refTile.Y+1)
	}

	var candidates []geometry.PointInt
	for x := bbox.X; x < stopX; x += p.refStep.X {
		for y := bbox.Y; y < stopY; y += p.refStep.Y {
			candidates = append(candidates, geometry.PointInt{X: x, Y: y})
		}
	}
	if len(candidates) == 0 {
		return RegionResult{TileLevel: NoLevel}
	}

	segDS, err := g.index.DownsampleOf(g.mask.Level)
	if err != nil {
		return RegionResult{TileLevel: NoLevel}
	}
	toMask := segDS.Inverse()

	in := OracleInput{
		Outline:        outline.Scale(toMask),
		Mask:           g.mask,
		TileSize:       p.refTile.X,
		Scale:          segDS,
		MinTissueRatio: g.cfg.MinTissueRatio,
	}
	for _, h := range holes {
		in.Holes = append(in.Holes, h.Scale(toMask))
	}

	keep, ratios := g.oracle.CheckCoordinates(in, candidates)

	res := RegionResult{TileLevel: p.level, ResizeFactor: p.resize}
	half := float64(p.refTile.X) / 2
	for i, c := range candidates {
		if !keep[i] {
			continue
		}
		if g.cfg.DropHoles && inHoles(holes, geometry.Point2D{X: float64(c.X) + half, Y: float64(c.Y) + half}) {
			continue
		}
		res.Coordinates = append(res.Coordinates, TileCoordinate{
			X:            c.X,
			Y:            c.Y,
			TissueRatio:  ratios[i],
			Level:        p.level,
			ResizeFactor: p.resize,
		})
	}

	if res.Empty() {
		return RegionResult{TileLevel: NoLevel}
	}
	return res
}

func inHoles(holes []geometry.Polygon, center geometry.Point2D) bool {
	for _, h := range holes {
		if h.ContainsStrict(center) {
			return true
		}
	}
	return false
}
