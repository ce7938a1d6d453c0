package main

import (
	"github.com/spf13/cobra"
)

// rootFlags carries the settings every subcommand reads (mirroring the
// teacher's rootFlags + PersistentFlags pattern).
type rootFlags struct {
	corpusDir string
	verbose   bool
}

func newRootCmd(app *AppContext) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "mdl",
		Short:         "mdl compiles and executes context-aware action graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.corpusDir, "corpus", "C", ".", "Directory holding the definition corpus")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd(flags, app))
	cmd.AddCommand(newListCmd(flags, app))
	cmd.AddCommand(newValidateCmd(flags, app))

	return cmd
}
