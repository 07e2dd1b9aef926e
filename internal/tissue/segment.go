package tissue

import (
	"errors"
	"fmt"
	"image"
	"math"

	"wsi-tiler/internal/pyramid"
	"wsi-tiler/internal/slide"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrMaskMisaligned is returned when a supplied mask does not cover the
// same physical area as the slide. No registration is attempted.
var ErrMaskMisaligned = errors.New("mask is not aligned with slide")

// SegmentOptions configures tissue segmentation.
type SegmentOptions struct {
	Downsample          float64 // coarse factor used to pick the segmentation level
	SaturationThreshold int     // fixed binarisation threshold on saturation
	MaxValue            int     // value written for tissue by the threshold
	MedianKernel        int     // median blur aperture; odd, 0 or 1 disables
	CloseKernel         int     // morphological closing kernel; 0 disables
	UseOtsu             bool    // derive the threshold with Otsu's method
}

// DefaultSegmentOptions returns the defaults for H&E slides.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{
		Downsample:          32,
		SaturationThreshold: 20,
		MaxValue:            255,
		MedianKernel:        7,
		CloseKernel:         0,
		UseOtsu:             false,
	}
}

// WithOtsu returns a copy of the options using automatic thresholding.
func (o SegmentOptions) WithOtsu(on bool) SegmentOptions {
	o.UseOtsu = on
	return o
}

// WithClosing returns a copy of the options with a closing kernel.
func (o SegmentOptions) WithClosing(kernel int) SegmentOptions {
	o.CloseKernel = kernel
	return o
}

// WithDownsample returns a copy of the options targeting another
// segmentation downsample.
func (o SegmentOptions) WithDownsample(ds float64) SegmentOptions {
	o.Downsample = ds
	return o
}

// Validate checks option ranges.
func (o SegmentOptions) Validate() error {
	if o.Downsample < 1 {
		return fmt.Errorf("segmentation downsample must be >= 1, got %g", o.Downsample)
	}
	if o.SaturationThreshold < 0 || o.SaturationThreshold > 255 {
		return fmt.Errorf("saturation threshold must be in [0,255], got %d", o.SaturationThreshold)
	}
	if o.MaxValue < 1 || o.MaxValue > 255 {
		return fmt.Errorf("max value must be in [1,255], got %d", o.MaxValue)
	}
	if o.MedianKernel > 1 && o.MedianKernel%2 == 0 {
		return fmt.Errorf("median kernel must be odd, got %d", o.MedianKernel)
	}
	if o.MedianKernel < 0 || o.CloseKernel < 0 {
		return fmt.Errorf("kernel sizes must not be negative")
	}
	return nil
}

// MaskOptions configures loading of a precomputed tissue mask.
type MaskOptions struct {
	TissueValue        uint8   // mask pixel value that marks tissue
	AlignmentTolerance float64 // allowed relative difference of physical extent
}

// DefaultMaskOptions returns defaults for label masks that encode tissue as 1.
func DefaultMaskOptions() MaskOptions {
	return MaskOptions{
		TissueValue:        1,
		AlignmentTolerance: 0.05,
	}
}

// Segmenter produces the binary tissue mask of a slide.
type Segmenter struct {
	Options     SegmentOptions
	MaskOptions MaskOptions
	Logger      log.FieldLogger
}

// NewSegmenter creates a Segmenter. A nil logger uses the logrus standard logger.
func NewSegmenter(opts SegmentOptions, mopts MaskOptions, logger log.FieldLogger) *Segmenter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Segmenter{Options: opts, MaskOptions: mopts, Logger: logger}
}

// Level returns the segmentation level for ix.
func (s *Segmenter) Level(ix *pyramid.Index) int {
	return ix.BestLevelForDownsample(s.Options.Downsample)
}

// Segment computes the mask from the slide's own pixels:
// HSV conversion, median blur of the saturation channel, binary
// threshold and optional morphological closing.
func (s *Segmenter) Segment(r slide.Reader, ix *pyramid.Index) (*Mask, error) {
	if err := s.Options.Validate(); err != nil {
		return nil, err
	}

	level := s.Level(ix)
	lvl, err := ix.Level(level)
	if err != nil {
		return nil, err
	}

	// Index spacings may be rescaled; the reader only knows its own.
	raw := r.Spacings()
	if level >= len(raw) {
		return nil, fmt.Errorf("reader has %d levels, index has %d", len(raw), ix.Len())
	}
	img, err := r.SlideAtSpacing(raw[level])
	if err != nil {
		return nil, fmt.Errorf("failed to read segmentation level %d: %w", level, err)
	}

	bgr, err := imageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer bgr.Close()

	bin := SaturationMask(bgr, s.Options)
	defer bin.Close()

	mask, err := matToLevel(bin, lvl)
	if err != nil {
		return nil, err
	}

	s.Logger.Debugf("[Segment] Level %d (%dx%d, %.2f µm/px): %.1f%% tissue",
		level, mask.Width, mask.Height, lvl.Spacing, mask.TissueFraction()*100)
	return mask, nil
}

// SaturationMask runs the thresholding pipeline on a BGR image and returns
// a single-channel binary Mat. The caller must Close the result.
func SaturationMask(bgr gocv.Mat, opts SegmentOptions) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()
	sat := channels[1]

	smoothed := gocv.NewMat()
	defer smoothed.Close()
	if opts.MedianKernel > 1 {
		gocv.MedianBlur(sat, &smoothed, opts.MedianKernel)
	} else {
		sat.CopyTo(&smoothed)
	}

	bin := gocv.NewMat()
	if opts.UseOtsu {
		gocv.Threshold(smoothed, &bin, 0, float32(opts.MaxValue), gocv.ThresholdBinary|gocv.ThresholdOtsu)
	} else {
		gocv.Threshold(smoothed, &bin, float32(opts.SaturationThreshold), float32(opts.MaxValue), gocv.ThresholdBinary)
	}

	if opts.CloseKernel > 0 {
		kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{opts.CloseKernel, opts.CloseKernel})
		defer kernel.Close()
		gocv.MorphologyEx(bin, &bin, gocv.MorphClose, kernel)
	}

	return bin
}

// LoadMask builds the mask from a precomputed tissue mask pyramid. maskIx
// describes maskReader's levels in the same physical units as ix.
func (s *Segmenter) LoadMask(ix *pyramid.Index, maskIx *pyramid.Index, maskReader slide.Reader) (*Mask, error) {
	if err := s.Options.Validate(); err != nil {
		return nil, err
	}
	if err := checkAlignment(ix, maskIx, s.MaskOptions.AlignmentTolerance); err != nil {
		return nil, err
	}

	segLevel := s.Level(ix)
	seg, err := ix.Level(segLevel)
	if err != nil {
		return nil, err
	}

	maskLevel := MaskLevelFor(maskIx, seg.Spacing)
	rawSpacings := maskReader.Spacings()
	if maskLevel >= len(rawSpacings) {
		return nil, fmt.Errorf("%w: mask reader has %d levels, index has %d",
			ErrMaskMisaligned, len(rawSpacings), maskIx.Len())
	}

	img, err := maskReader.SlideAtSpacing(rawSpacings[maskLevel])
	if err != nil {
		return nil, fmt.Errorf("failed to read mask level %d: %w", maskLevel, err)
	}

	src, err := grayMat(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert mask: %w", err)
	}
	defer src.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, seg.Dimensions, 0, 0, gocv.InterpolationNearestNeighbor)

	bin := gocv.NewMat()
	defer bin.Close()
	v := float64(s.MaskOptions.TissueValue)
	gocv.InRangeWithScalar(resized, gocv.NewScalar(v, 0, 0, 0), gocv.NewScalar(v, 0, 0, 0), &bin)

	mask, err := maskFromMat(bin, segLevel)
	if err != nil {
		return nil, err
	}

	s.Logger.Debugf("[Segment] Loaded mask level %d resampled to level %d (%dx%d): %.1f%% tissue",
		maskLevel, segLevel, mask.Width, mask.Height, mask.TissueFraction()*100)
	return mask, nil
}

// MaskLevelFor picks the mask level to resample to segSpacing: the level
// whose downsample is closest, then finer levels until the mask would not
// need upsampling.
func MaskLevelFor(maskIx *pyramid.Index, segSpacing float64) int {
	levels := maskIx.Levels()
	level := maskIx.BestLevelForDownsample(segSpacing / levels[0].Spacing)
	scale := segSpacing / levels[level].Spacing
	for scale < 1 && level > 0 {
		level--
		scale = segSpacing / levels[level].Spacing
	}
	return level
}

func checkAlignment(ix, maskIx *pyramid.Index, tolerance float64) error {
	a := ix.Levels()[0]
	b := maskIx.Levels()[0]

	extent := func(l pyramid.Level) (float64, float64) {
		return float64(l.Dimensions.X) * l.Spacing, float64(l.Dimensions.Y) * l.Spacing
	}
	ax, ay := extent(a)
	bx, by := extent(b)
	if math.Abs(ax-bx)/ax > tolerance || math.Abs(ay-by)/ay > tolerance {
		return fmt.Errorf("%w: slide covers %.1fx%.1f µm, mask covers %.1fx%.1f µm",
			ErrMaskMisaligned, ax, ay, bx, by)
	}
	return nil
}

// matToLevel converts a binary Mat into a Mask sized to the level,
// resampling with nearest neighbour when the reader returned another size.
func matToLevel(bin gocv.Mat, lvl pyramid.Level) (*Mask, error) {
	if bin.Cols() == lvl.Dimensions.X && bin.Rows() == lvl.Dimensions.Y {
		return maskFromMat(bin, lvl.Index)
	}
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(bin, &resized, lvl.Dimensions, 0, 0, gocv.InterpolationNearestNeighbor)
	return maskFromMat(resized, lvl.Index)
}

// imageToMat converts a Go image to a BGR Mat. The caller must Close it.
func imageToMat(img image.Image) (gocv.Mat, error) {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, nrgba.Pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer mat.Close()

	// Convert RGBA to BGR (OpenCV format)
	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// grayMat converts the first channel of img into a single-channel Mat
// without altering label values.
func grayMat(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, w*h)

	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < h; y++ {
			copy(buf[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
	} else {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				buf[y*w+x] = uint8(r >> 8)
			}
		}
	}

	return ownedMat(h, w, buf)
}
