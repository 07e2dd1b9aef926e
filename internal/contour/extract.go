package contour

import (
	"fmt"

	"wsi-tiler/internal/pyramid"
	"wsi-tiler/internal/tissue"
	"wsi-tiler/pkg/geometry"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Find returns every contour of a binary mask with its two-level hierarchy.
// Outer boundaries have Parent -1; holes point at their enclosing boundary.
func Find(mask gocv.Mat) ([]Contour, []Hierarchy) {
	if mask.Empty() {
		return nil, nil
	}

	hierarchy := gocv.NewMat()
	defer hierarchy.Close()

	found := gocv.FindContoursWithParams(mask, &hierarchy, gocv.RetrievalCComp, gocv.ChainApproxNone)
	defer found.Close()

	n := found.Size()
	if n == 0 || hierarchy.Empty() {
		return nil, nil
	}

	contours := make([]Contour, n)
	hier := make([]Hierarchy, n)
	for i := 0; i < n; i++ {
		pv := found.At(i)
		contours[i] = Contour{
			Points: geometry.PolygonFromImagePoints(pv.ToPoints()),
			Area:   gocv.ContourArea(pv),
		}
		v := hierarchy.GetVeciAt(0, i)
		hier[i] = Hierarchy{
			Next:       int(v[0]),
			Prev:       int(v[1]),
			FirstChild: int(v[2]),
			Parent:     int(v[3]),
		}
	}
	return contours, hier
}

// Extractor turns a tissue mask into filtered regions in level-0 pixels.
type Extractor struct {
	Index  *pyramid.Index
	Mask   *tissue.Mask
	Logger log.FieldLogger
}

// NewExtractor creates an Extractor. A nil logger uses the logrus standard
// logger.
func NewExtractor(ix *pyramid.Index, mask *tissue.Mask, logger log.FieldLogger) *Extractor {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Extractor{Index: ix, Mask: mask, Logger: logger}
}

// Scale returns the factor mapping mask pixels to pixels of the level that
// best matches spacing.
func (e *Extractor) Scale(spacing, tolerance float64) (geometry.Scale2D, error) {
	target, _ := e.Index.BestLevelForSpacing(spacing, tolerance)

	segDS, err := e.Index.DownsampleOf(e.Mask.Level)
	if err != nil {
		return geometry.Scale2D{}, err
	}
	targetDS, err := e.Index.DownsampleOf(target)
	if err != nil {
		return geometry.Scale2D{}, err
	}
	return geometry.Scale2D{X: segDS.X / targetDS.X, Y: segDS.Y / targetDS.Y}, nil
}

// Extract finds and filters the tissue regions for a request at spacing and
// returns them in level-0 coordinates.
func (e *Extractor) Extract(spacing, tolerance float64, t Thresholds) ([]Region, error) {
	scale, err := e.Scale(spacing, tolerance)
	if err != nil {
		return nil, err
	}
	lim := t.Scaled(scale)

	mat, err := e.Mask.Mat()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mask: %w", err)
	}
	defer mat.Close()

	contours, hierarchy := Find(mat)
	regions := Filter(contours, hierarchy, lim)

	segDS, err := e.Index.DownsampleOf(e.Mask.Level)
	if err != nil {
		return nil, err
	}

	e.Logger.WithFields(log.Fields{
		"contours":    len(contours),
		"regions":     len(regions),
		"region_area": lim.RegionArea,
		"hole_area":   lim.HoleArea,
	}).Debug("[Contour] Filtered tissue contours")

	return Rescale(regions, segDS), nil
}
