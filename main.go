// Package main provides the entry point for the wsi-tiler command.
package main

import (
	"os"

	"wsi-tiler/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
