package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/spigell/leads/internal/cache"
)

// Actual version can be specified in build command.
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version: %s (%s, cache format v%d)\n", app, version, runtime.Version(), cache.SnapshotVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
