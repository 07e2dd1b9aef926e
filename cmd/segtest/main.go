// Command segtest segments a slide pyramid and prints the tissue regions
// found at a target spacing. With -out it also writes the mask as a PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"

	"wsi-tiler/internal/contour"
	"wsi-tiler/internal/pyramid"
	"wsi-tiler/internal/slide"
	"wsi-tiler/internal/tiling"
	"wsi-tiler/internal/tissue"

	"github.com/disintegration/imaging"
)

func main() {
	manifest := flag.String("slide", "", "Path to slide manifest")
	spacing := flag.Float64("spacing", 0.5, "Target spacing in µm/px")
	tolerance := flag.Float64("tolerance", 0.07, "Relative spacing tolerance")
	downsample := flag.Float64("downsample", 32, "Segmentation downsample")
	otsu := flag.Bool("otsu", false, "Use Otsu thresholding")
	out := flag.String("out", "", "Write the mask to this PNG")
	flag.Parse()

	if *manifest == "" {
		fmt.Println("Usage: segtest -slide <manifest.yaml> [-spacing 0.5] [-downsample 32] [-otsu] [-out mask.png]")
		os.Exit(1)
	}

	stack, err := slide.Open(*manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open slide: %v\n", err)
		os.Exit(1)
	}
	defer stack.Close()

	ix, err := pyramid.NewIndex(stack.Spacings(), stack.LevelDimensions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pyramid: %v\n", err)
		os.Exit(1)
	}
	for _, l := range ix.Levels() {
		fmt.Printf("  level %d: %dx%d @ %.4f µm/px\n", l.Index, l.Dimensions.X, l.Dimensions.Y, l.Spacing)
	}

	opts := tissue.DefaultSegmentOptions().WithDownsample(*downsample).WithOtsu(*otsu)
	fmt.Printf("\nSegmentation parameters:\n")
	fmt.Printf("  Level: %d (downsample %g)\n", ix.BestLevelForDownsample(opts.Downsample), opts.Downsample)
	fmt.Printf("  Saturation threshold: %d (otsu %v)\n", opts.SaturationThreshold, opts.UseOtsu)
	fmt.Printf("  Median kernel: %d, closing kernel: %d\n", opts.MedianKernel, opts.CloseKernel)

	seg := tissue.NewSegmenter(opts, tissue.DefaultMaskOptions(), nil)
	mask, err := seg.Segment(stack, ix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Segmentation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nMask: %dx%d, %.1f%% tissue\n", mask.Width, mask.Height, mask.TissueFraction()*100)

	regions, err := contour.NewExtractor(ix, mask, nil).
		Extract(*spacing, *tolerance, tiling.DefaultFilterConfig().Thresholds())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Contour extraction failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nFound %d regions:\n", len(regions))
	fmt.Printf("%-6s %10s %10s %10s %10s %12s %6s\n", "ID", "X", "Y", "Width", "Height", "Area", "Holes")
	for i, r := range regions {
		b := r.Outline.BoundingRect()
		fmt.Printf("%-6d %10d %10d %10d %10d %12.0f %6d\n",
			i, b.X, b.Y, b.Width, b.Height, r.Outline.Area(), len(r.Holes))
	}

	if *out != "" {
		img := &image.Gray{
			Pix:    mask.Pix(),
			Stride: mask.Width,
			Rect:   image.Rect(0, 0, mask.Width, mask.Height),
		}
		if err := imaging.Save(img, *out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write mask: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote mask to %s\n", *out)
	}
}
