package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cpghunt/cpghunt/internal/config"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "cpghunt [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Cpghunt locates taint flows in a codebase with a graph engine and a language model.",
		Long: `Cpghunt drives an external code-property-graph engine to locate taint flows
(such as command-injection paths) in a codebase, using a language-model service
to classify functions as taint sources, sinks or sanitizers and to generate
data-flow semantics for functions the engine cannot see into.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yml)")
}

func Execute() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	var err error

	if cfgFile == "" {
		cfgFile = "config.yml"
	}
	AppConfig, err = config.NewConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
