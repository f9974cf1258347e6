package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cpghunt/cpghunt/internal/analysis"
	"github.com/cpghunt/cpghunt/internal/logger"
)

type RunOptionsHunt struct {
	SourcePath string
	Passes     []string
	OutputDir  string
	SARIF      bool
}

var (
	allArgumentsHunt RunOptionsHunt
	execExampleHunt  = `  # Hunt for command injection in a local source tree
  cpghunt hunt --source /path/to/code

  # Run specific passes and export SARIF
  cpghunt hunt --source /path/to/code --pass cmdinjection --sarif`
)

var huntCmd = &cobra.Command{
	Use:                   "hunt --source /local_path/code [--pass PASS]... [--output DIR] [--sarif]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               execExampleHunt,
	Short:                 "The command analyzes a source tree for taint-flow vulnerabilities",

	RunE: func(cmd *cobra.Command, args []string) error {
		checkArgs := func() error {
			if len(allArgumentsHunt.SourcePath) == 0 {
				return fmt.Errorf("'source' flag must be specified")
			}
			info, err := os.Stat(allArgumentsHunt.SourcePath)
			if err != nil {
				return fmt.Errorf("source path is not accessible: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("source path '%s' is not a directory", allArgumentsHunt.SourcePath)
			}
			return nil
		}
		if err := checkArgs(); err != nil {
			return err
		}

		if allArgumentsHunt.OutputDir != "" {
			AppConfig.Hunt.OutputDir = allArgumentsHunt.OutputDir
		}
		if allArgumentsHunt.SARIF {
			AppConfig.Hunt.SARIF = true
		}
		passes := allArgumentsHunt.Passes
		if len(passes) == 0 {
			passes = AppConfig.Hunt.Passes
		}

		log := logger.NewLogger(AppConfig, "core-hunt")
		engine := analysis.NewEngine(AppConfig, analysis.DefaultRegistry(), log)
		if err := engine.Run(allArgumentsHunt.SourcePath, passes); err != nil {
			log.Error("hunt failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(huntCmd)

	huntCmd.Flags().StringVarP(&allArgumentsHunt.SourcePath, "source", "s", "", "path of the source tree to analyze")
	huntCmd.Flags().StringSliceVar(&allArgumentsHunt.Passes, "pass", nil, "analysis pass to run, repeatable (default from config)")
	huntCmd.Flags().StringVarP(&allArgumentsHunt.OutputDir, "output", "o", "", "base directory for run reports (default from config)")
	huntCmd.Flags().BoolVar(&allArgumentsHunt.SARIF, "sarif", false, "also write SARIF reports for vulnerability passes")
}
