package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"wsi-tiler/internal/export"
	"wsi-tiler/internal/slide"
	"wsi-tiler/internal/tiling"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

var (
	tileSlide      string
	tileMask       string
	tileOut        string
	tileWorkers    int
	tileSpacing    float64
	tileSize       int
	tileWholeSlide bool
)

var tileCmd = &cobra.Command{
	Use:   "tile",
	Short: "Compute tissue tile coordinates for a slide",
	Long: `Compute tissue tile coordinates for a slide pyramid.

The result is written as a JSON tile file, or appended to a SQLite tile
database when --out ends in .db.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if tileSpacing > 0 {
			cfg.Tiling.Spacing = tileSpacing
		}
		if tileSize > 0 {
			cfg.Tiling.TileSize = tileSize
		}
		if tileWorkers > 0 {
			cfg.Processing.Workers = tileWorkers
		}

		tc, err := cfg.TilingConfig()
		if err != nil {
			return err
		}
		fc, err := cfg.FilterConfig()
		if err != nil {
			return err
		}
		segOpts, err := cfg.SegmentOptions()
		if err != nil {
			return err
		}
		maskOpts, err := cfg.MaskOptions()
		if err != nil {
			return err
		}

		reader, err := slide.Open(tileSlide)
		if err != nil {
			return err
		}

		opts := []tiling.SlideOption{
			tiling.WithWarner(warner),
			tiling.WithSegmentOptions(segOpts),
			tiling.WithMaskOptions(maskOpts),
		}
		if cfg.Processing.BaseSpacing > 0 {
			opts = append(opts, tiling.WithBaseSpacing(cfg.Processing.BaseSpacing))
		}
		var maskReader *slide.Stack
		if tileMask != "" {
			maskReader, err = slide.Open(tileMask)
			if err != nil {
				reader.Close()
				return err
			}
			opts = append(opts, tiling.WithMask(maskReader))
		}

		wsi, err := tiling.NewSlide(reader, opts...)
		if err != nil {
			reader.Close()
			if maskReader != nil {
				maskReader.Close()
			}
			return err
		}
		defer wsi.Close()

		var res *tiling.Result
		if tileWholeSlide {
			res, err = wsi.ComputeWholeSlideCoordinates(tc, cfg.Processing.Workers)
		} else {
			res, err = wsi.ComputeTileCoordinates(tc, fc, cfg.Processing.Workers)
		}
		if err != nil {
			return err
		}

		if err := writeResult(cmd, tc, fc, res); err != nil {
			return err
		}
		printSummary(cmd, res)
		return nil
	},
}

func writeResult(cmd *cobra.Command, tc tiling.Config, fc tiling.FilterConfig, res *tiling.Result) error {
	if strings.EqualFold(filepath.Ext(tileOut), ".db") {
		store, err := export.NewStore(tileOut)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.SaveRun(cmd.Context(), tileSlide, tileMask, tc, fc, res)
		if err != nil {
			return err
		}
		log.WithField("run", id).Infof("[Export] Stored %d tiles in %s", len(res.Coordinates), tileOut)
		cmd.Printf("run %s\n", id)
		return nil
	}

	f := export.New(tc, fc, res)
	if abs, err := filepath.Abs(tileOut); err == nil {
		f.SetSlide(abs, absOrSame(tileSlide))
		if tileMask != "" {
			f.SetMask(abs, absOrSame(tileMask))
		}
	}
	if err := f.Save(tileOut); err != nil {
		return fmt.Errorf("failed to write %s: %w", tileOut, err)
	}
	log.Infof("[Export] Wrote %d tiles to %s", len(res.Coordinates), tileOut)
	return nil
}

func absOrSame(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// printSummary reports tile count, level and tissue ratio statistics.
func printSummary(cmd *cobra.Command, res *tiling.Result) {
	cmd.Printf("tiles:        %d\n", len(res.Coordinates))
	if len(res.Coordinates) == 0 {
		return
	}
	cmd.Printf("tile level:   %d (resize %.3f, %d px at level 0)\n",
		res.TileLevel, res.ResizeFactor, res.TileSizeLevel0)

	ratios := make([]float64, len(res.Coordinates))
	for i, c := range res.Coordinates {
		ratios[i] = c.TissueRatio
	}
	sort.Float64s(ratios)
	mean, std := stat.MeanStdDev(ratios, nil)
	median := stat.Quantile(0.5, stat.Empirical, ratios, nil)
	cmd.Printf("tissue ratio: mean %.3f, std %.3f, median %.3f\n", mean, std, median)
}

func init() {
	f := tileCmd.Flags()
	f.StringVarP(&tileSlide, "slide", "s", "", "slide manifest")
	f.StringVarP(&tileMask, "mask", "m", "", "precomputed tissue mask manifest")
	f.StringVarP(&tileOut, "out", "o", "", "output tile file (.json) or database (.db)")
	f.IntVarP(&tileWorkers, "workers", "w", 0, "regions tiled in parallel (default from config)")
	f.Float64Var(&tileSpacing, "spacing", 0, "target spacing in µm/px (default from config)")
	f.IntVar(&tileSize, "tile-size", 0, "tile size in pixels (default from config)")
	f.BoolVar(&tileWholeSlide, "whole-slide", false, "tile the full slide extent instead of tissue regions")
	_ = tileCmd.MarkFlagRequired("slide")
	_ = tileCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(tileCmd)
}
