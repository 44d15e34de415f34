package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fentz26/taskforge/internal/config"
	"github.com/fentz26/taskforge/internal/controlplane"
)

var rootCmd = &cobra.Command{
	Use:   "taskforge",
	Short: "taskforge - task generation and automated grading",
	Long: `taskforge issues parameterized coding tasks to students, accepts their
repository submissions and grades them with automated checks.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of taskforge",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskforge version %s\n", controlplane.Version)
		fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  Go version: %s\n", runtime.Version())
	},
}

var (
	apiAddr    string
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
