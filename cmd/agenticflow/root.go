package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agenticflow",
	Short: "Multi-agent task orchestration engine",
	Long: `agenticflow runs workflows of dependent tasks as a DAG with bounded
concurrency, automatic retries with exponential backoff, cooperative
interrupts, and live progress streaming.

Workflows are YAML files describing tasks, their shell commands, and the
dependencies between them:

  name: build-and-test
  tasks:
    - id: build
      command: make build
    - id: test
      command: make test
      depends_on: [build]

Run one with:
  agenticflow run workflow.yaml`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
