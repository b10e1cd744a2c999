package main

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "locatefs",
	Short: "A concurrent interactive file-name locator",
	Long: `locatefs indexes one or more directory trees in memory, keeps the
index in sync with live filesystem changes, and answers name queries
against it. Running with no subcommand behaves like the classic
"locate" tool: it scans the given roots, then serves query lines read
from standard input.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(tuiCmd)

	// cobra reports bad flags and wrong argument counts as plain
	// errors; mark them as usage errors so they exit with code 2.
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})
	for _, c := range rootCmd.Commands() {
		if validate := c.Args; validate != nil {
			c.Args = func(cmd *cobra.Command, args []string) error {
				if err := validate(cmd, args); err != nil {
					return usageError{err: err}
				}
				return nil
			}
		}
	}
}
