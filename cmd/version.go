package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time through -ldflags.
var (
	CoreVersion = "unknown"
	BuildTime   = "unknown"
)

var versionCmd = &cobra.Command{
	Use:                   "version",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Print the version number of the application",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cpghunt %s (built %s, %s)\n", CoreVersion, BuildTime, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
