package tiling

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"wsi-tiler/internal/contour"
	"wsi-tiler/internal/pyramid"
	"wsi-tiler/internal/slide"
	"wsi-tiler/internal/tissue"

	log "github.com/sirupsen/logrus"
)

// Slide ties a pyramid reader to its tissue mask and serves tiling
// requests. The mask and pyramid are fixed at construction; extracted
// regions are cached per request key.
type Slide struct {
	Reader slide.Reader
	Index  *pyramid.Index
	Mask   *tissue.Mask

	maskReader slide.Reader
	oracle     TissueOracle
	extractor  *contour.Extractor
	logger     log.FieldLogger
	rescale    float64 // index spacing / reader spacing

	mu      sync.Mutex
	regions map[regionKey][]contour.Region
}

type regionKey struct {
	spacing   float64
	tolerance float64
	filter    FilterConfig
}

// SlideOption configures NewSlide.
type SlideOption func(*slideOptions)

type slideOptions struct {
	maskReader  slide.Reader
	baseSpacing float64
	warner      *pyramid.ToleranceWarner
	logger      log.FieldLogger
	oracle      TissueOracle
	segment     tissue.SegmentOptions
	mask        tissue.MaskOptions
}

// WithMask segments from a precomputed mask pyramid instead of the slide
// pixels.
func WithMask(r slide.Reader) SlideOption {
	return func(o *slideOptions) { o.maskReader = r }
}

// WithBaseSpacing overrides the level-0 spacing reported by the reader.
func WithBaseSpacing(spacing float64) SlideOption {
	return func(o *slideOptions) { o.baseSpacing = spacing }
}

// WithWarner attaches the process-wide tolerance diagnostic.
func WithWarner(w *pyramid.ToleranceWarner) SlideOption {
	return func(o *slideOptions) { o.warner = w }
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) SlideOption {
	return func(o *slideOptions) { o.logger = l }
}

// WithOracle replaces the default MaskOracle.
func WithOracle(or TissueOracle) SlideOption {
	return func(o *slideOptions) { o.oracle = or }
}

// WithSegmentOptions sets the segmentation parameters.
func WithSegmentOptions(opts tissue.SegmentOptions) SlideOption {
	return func(o *slideOptions) { o.segment = opts }
}

// WithMaskOptions sets how a precomputed mask is read.
func WithMaskOptions(opts tissue.MaskOptions) SlideOption {
	return func(o *slideOptions) { o.mask = opts }
}

// NewSlide builds the pyramid index and the tissue mask for r.
func NewSlide(r slide.Reader, opts ...SlideOption) (*Slide, error) {
	o := slideOptions{
		oracle:  MaskOracle{},
		segment: tissue.DefaultSegmentOptions(),
		mask:    tissue.DefaultMaskOptions(),
		logger:  log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	spacings := r.Spacings()
	if len(spacings) == 0 {
		return nil, slide.ErrNoLevels
	}

	ixOpts := []pyramid.Option{pyramid.WithWarner(o.warner)}
	rescale := 1.0
	if o.baseSpacing > 0 {
		ixOpts = append(ixOpts, pyramid.WithBaseSpacing(o.baseSpacing))
		rescale = o.baseSpacing / spacings[0]
	}
	ix, err := pyramid.NewIndex(spacings, r.LevelDimensions(), ixOpts...)
	if err != nil {
		return nil, err
	}

	seg := tissue.NewSegmenter(o.segment, o.mask, o.logger)
	var mask *tissue.Mask
	if o.maskReader != nil {
		maskSpacings := o.maskReader.Spacings()
		if len(maskSpacings) == 0 {
			return nil, fmt.Errorf("mask: %w", slide.ErrNoLevels)
		}
		// Mask spacings get the same correction as the slide's.
		maskIx, err := pyramid.NewIndex(maskSpacings, o.maskReader.LevelDimensions(),
			pyramid.WithBaseSpacing(maskSpacings[0]*rescale))
		if err != nil {
			return nil, fmt.Errorf("mask: %w", err)
		}
		mask, err = seg.LoadMask(ix, maskIx, o.maskReader)
		if err != nil {
			return nil, err
		}
	} else {
		mask, err = seg.Segment(r, ix)
		if err != nil {
			return nil, err
		}
	}

	return &Slide{
		Reader:     r,
		Index:      ix,
		Mask:       mask,
		maskReader: o.maskReader,
		oracle:     o.oracle,
		extractor:  contour.NewExtractor(ix, mask, o.logger),
		logger:     o.logger,
		rescale:    rescale,
		regions:    make(map[regionKey][]contour.Region),
	}, nil
}

// Regions returns the filtered tissue regions for a request, extracting
// them on first use.
func (s *Slide) Regions(spacing, tolerance float64, filter FilterConfig) ([]contour.Region, error) {
	key := regionKey{spacing: spacing, tolerance: tolerance, filter: filter}

	s.mu.Lock()
	defer s.mu.Unlock()

	if regions, ok := s.regions[key]; ok {
		return regions, nil
	}
	regions, err := s.extractor.Extract(spacing, tolerance, filter.Thresholds())
	if err != nil {
		return nil, err
	}
	s.regions[key] = regions
	return regions, nil
}

// ComputeTileCoordinates tiles every tissue region and merges the results
// in region order.
func (s *Slide) ComputeTileCoordinates(cfg Config, filter FilterConfig, workers int) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkStep(cfg); err != nil {
		return nil, err
	}

	regions, err := s.Regions(cfg.Spacing, cfg.Tolerance, filter)
	if err != nil {
		return nil, err
	}

	g := &generator{index: s.Index, mask: s.Mask, oracle: s.oracle, cfg: cfg}
	results := dispatch(len(regions), workers, func(i int) RegionResult {
		return g.region(&regions[i])
	})
	return s.finish(cfg, results, len(regions))
}

// ComputeWholeSlideCoordinates tiles the full slide extent as one region.
func (s *Slide) ComputeWholeSlideCoordinates(cfg Config, workers int) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkStep(cfg); err != nil {
		return nil, err
	}

	g := &generator{index: s.Index, mask: s.Mask, oracle: s.oracle, cfg: cfg}
	results := dispatch(1, workers, func(int) RegionResult {
		return g.region(nil)
	})
	return s.finish(cfg, results, 1)
}

func (s *Slide) checkStep(cfg Config) error {
	p, err := newPlan(s.Index, cfg)
	if err != nil {
		return err
	}
	if p.degenerate() {
		return fmt.Errorf("%w: tile size %d, overlap %g, resize %g",
			ErrDegenerateStep, cfg.TileSize, cfg.Overlap, p.resize)
	}
	return nil
}

func (s *Slide) finish(cfg Config, results []RegionResult, regions int) (*Result, error) {
	res, err := merge(results)
	if err != nil {
		return nil, err
	}

	spacing0, err := s.Index.SpacingOf(0)
	if err != nil {
		return nil, err
	}
	res.TileSizeLevel0 = int(float64(cfg.TileSize) * cfg.Spacing / spacing0)

	s.logger.WithFields(log.Fields{
		"regions": regions,
		"tiles":   len(res.Coordinates),
		"level":   res.TileLevel,
		"resize":  res.ResizeFactor,
	}).Infof("[Tiling] Extracted %d tiles at %.3f µm/px", len(res.Coordinates), cfg.Spacing)
	return res, nil
}

// Tile reads a size x size patch whose top-left corner is (x, y) in level-0
// pixels.
func (s *Slide) Tile(x, y, size int, spacing float64) (image.Image, error) {
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: spacing must be > 0, got %g", ErrInvalidConfig, spacing)
	}
	return s.Reader.Patch(x, y, size, size, spacing/s.rescale)
}

// Close releases the slide and mask readers.
func (s *Slide) Close() error {
	var errs []error
	if err := s.Reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.maskReader != nil {
		if err := s.maskReader.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
