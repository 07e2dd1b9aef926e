// Package cli implements the wsi-tiler command tree.
package cli

import (
	"wsi-tiler/internal/config"
	"wsi-tiler/internal/pyramid"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string

	// warner reports unreachable spacings once per process.
	warner = pyramid.NewToleranceWarner(nil)
)

var rootCmd = &cobra.Command{
	Use:   "wsi-tiler",
	Short: "Select tissue tiles from whole-slide images",
	Long: `wsi-tiler segments tissue in a multi-resolution slide pyramid and lays
out tile coordinates over every tissue region at a target spacing.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		log.SetOutput(cmd.ErrOrStderr())
		if verbose {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "run configuration (.yaml or .toml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config, or returns the defaults when it is unset.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}
