package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sprintctl",
	Short: "Operator CLI for the outreach sequence engine",
	Long: `sprintctl inspects the send window and runs sequence ticks from the
command line, sharing configuration and state with the daemon.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
