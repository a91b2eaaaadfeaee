package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "nscache-cli",
		Short:        "Inspect nscache snapshots and validate cache configs",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn or error (env NSCACHE_LOG_LEVEL)")
	root.AddCommand(newInspectCommand(), newValidateCommand(), newDefaultsCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
