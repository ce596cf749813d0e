package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath    string
	workspaceFlag string
	rootCmd       = &cobra.Command{
		Use:   "tunex",
		Short: "TuneX - experiment design for optimization campaigns",
		Long: `TuneX manages Bayesian-optimization campaigns for lab experiments.
It keeps campaign definitions and run history in a workspace directory,
asks an external optimization engine for the next batch of experiments,
and falls back to random sampling when the engine is unavailable.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace directory (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
