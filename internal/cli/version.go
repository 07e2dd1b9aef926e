package cli

import (
	"wsi-tiler/internal/version"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("wsi-tiler version %s\n", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
