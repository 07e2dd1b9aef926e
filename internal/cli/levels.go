package cli

import (
	"fmt"
	"text/tabwriter"

	"wsi-tiler/internal/pyramid"
	"wsi-tiler/internal/slide"

	"github.com/spf13/cobra"
)

var (
	levelsSlide       string
	levelsBaseSpacing float64
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Show the pyramid levels of a slide and the levels a run would use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		stack, err := slide.Open(levelsSlide)
		if err != nil {
			return err
		}
		defer stack.Close()

		var opts []pyramid.Option
		if levelsBaseSpacing > 0 {
			opts = append(opts, pyramid.WithBaseSpacing(levelsBaseSpacing))
		} else if cfg.Processing.BaseSpacing > 0 {
			opts = append(opts, pyramid.WithBaseSpacing(cfg.Processing.BaseSpacing))
		}
		ix, err := pyramid.NewIndex(stack.Spacings(), stack.LevelDimensions(), opts...)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LEVEL\tWIDTH\tHEIGHT\tSPACING\tDOWNSAMPLE")
		for _, l := range ix.Levels() {
			fmt.Fprintf(w, "%d\t%d\t%d\t%.4f\t%.2f x %.2f\n",
				l.Index, l.Dimensions.X, l.Dimensions.Y, l.Spacing, l.Downsample.X, l.Downsample.Y)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		segLevel := ix.BestLevelForDownsample(cfg.Segmentation.Downsample)
		tileLevel, within := ix.BestLevelForSpacing(cfg.Tiling.Spacing, cfg.Tiling.Tolerance)
		cmd.Printf("\nsegmentation level: %d (downsample %g)\n", segLevel, cfg.Segmentation.Downsample)
		cmd.Printf("tile level:         %d for %g µm/px (within tolerance: %t)\n",
			tileLevel, cfg.Tiling.Spacing, within)
		return nil
	},
}

func init() {
	levelsCmd.Flags().StringVarP(&levelsSlide, "slide", "s", "", "slide manifest")
	levelsCmd.Flags().Float64Var(&levelsBaseSpacing, "base-spacing", 0, "override the level-0 spacing")
	_ = levelsCmd.MarkFlagRequired("slide")
	rootCmd.AddCommand(levelsCmd)
}
