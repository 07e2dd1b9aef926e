package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"wsi-tiler/internal/slide"

	"github.com/spf13/cobra"
)

var (
	buildImage       string
	buildSpacing     float64
	buildDownsamples []int
	buildOut         string
	buildName        string
)

var pyramidCmd = &cobra.Command{
	Use:   "pyramid",
	Short: "Work with slide pyramids",
}

var pyramidBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a level pyramid and manifest from a single image",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if buildSpacing <= 0 {
			return fmt.Errorf("--spacing must be > 0")
		}
		img, err := slide.DecodeFile(buildImage)
		if err != nil {
			return err
		}

		stack, err := slide.Build(img, buildSpacing, buildDownsamples)
		if err != nil {
			return err
		}

		name := buildName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(buildImage), filepath.Ext(buildImage))
		}
		manifest, err := stack.Save(buildOut, name)
		if err != nil {
			return err
		}

		dims := stack.LevelDimensions()
		for i, s := range stack.Spacings() {
			cmd.Printf("level %d: %dx%d @ %g µm/px\n", i, dims[i].X, dims[i].Y, s)
		}
		cmd.Printf("Wrote %s\n", manifest)
		return nil
	},
}

func init() {
	f := pyramidBuildCmd.Flags()
	f.StringVar(&buildImage, "image", "", "level-0 image (PNG, JPEG or TIFF)")
	f.Float64Var(&buildSpacing, "spacing", 0, "level-0 spacing in µm/px")
	f.IntSliceVar(&buildDownsamples, "downsamples", []int{1, 4, 16, 64}, "per-level downsample factors")
	f.StringVarP(&buildOut, "out", "o", "", "output directory")
	f.StringVar(&buildName, "name", "", "pyramid name (defaults to the image name)")
	_ = pyramidBuildCmd.MarkFlagRequired("image")
	_ = pyramidBuildCmd.MarkFlagRequired("out")

	pyramidCmd.AddCommand(pyramidBuildCmd)
	rootCmd.AddCommand(pyramidCmd)
}
