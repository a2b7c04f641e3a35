// Package main is the entry point for the evaluation pipeline: the HTTP API,
// the background worker and the knowledge indexer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v       = viper.New()
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "evaluator",
	Short:         "CV and project report evaluation pipeline",
	Long:          "Evaluates candidate CVs and project reports against a job description and rubric using retrieval-augmented generation.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", "", "Path to a .env file (default .env when present)")
	flags.Bool("log-json", false, "Emit JSON logs")
	flags.Bool("debug", false, "Enable debug logging")

	_ = v.BindPFlag("log_json", flags.Lookup("log-json"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
