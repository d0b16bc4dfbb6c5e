package main

import (
	"fmt"
	"os"

	"github.com/cuemby/taskrunner/pkg/cli"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskrunner",
	Short: "taskrunner - heterogeneous task-graph runtime",
	Long: `taskrunner schedules codelets over registered data handles across
memory nodes, the way a StarPU-style runtime drives CPU and accelerator
workers from a single dependency-resolved task graph.

This build ships CPU workers only; NCUDA/NOPENCL must be left at 0.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"taskrunner version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Optional YAML config file overriding defaults (env vars still win)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory for the performance-model store; empty disables calibration persistence")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	cli.InitLogging(logLevel, logJSON)
}
