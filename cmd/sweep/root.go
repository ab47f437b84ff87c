package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.viam.com/rdk/logging"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "sweep",
	Short: "sweep runs dielectric measurement sweeps against simulated instruments and inspects the sweep archive",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd, historyCmd)
}

func newLogger() logging.Logger {
	if debug {
		return logging.NewDebugLogger("sweep")
	}
	return logging.NewLogger("sweep")
}
