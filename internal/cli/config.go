package cli

import (
	"fmt"
	"os"

	"wsi-tiler/internal/config"

	"github.com/spf13/cobra"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage run configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the default configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(config.Default(), path); err != nil {
			return err
		}
		cmd.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tc, err := cfg.TilingConfig()
		if err != nil {
			return err
		}
		fc, err := cfg.FilterConfig()
		if err != nil {
			return err
		}
		cmd.Printf("spacing:          %g (tolerance %g)\n", tc.Spacing, tc.Tolerance)
		cmd.Printf("tile size:        %d (overlap %g)\n", tc.TileSize, tc.Overlap)
		cmd.Printf("min tissue ratio: %g\n", tc.MinTissueRatio)
		cmd.Printf("padding:          %t\n", tc.UsePadding)
		cmd.Printf("drop holes:       %t\n", tc.DropHoles)
		cmd.Printf("filter:           ref %d, region %g, hole %g, max holes %d\n",
			fc.RefTileSize, fc.RegionAreaThreshold, fc.HoleAreaThreshold, fc.MaxHoles)
		cmd.Printf("workers:          %d\n", cfg.Processing.Workers)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
