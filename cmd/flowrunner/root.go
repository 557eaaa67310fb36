package main

import (
	"github.com/spf13/cobra"
)

// RootCmd assembles the flowrunner CLI. Its two subcommands are the only
// wire-up the core engine needs to run standalone: everything else is
// library code meant to be embedded.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowrunner",
		Short: "Drive or work a flow execution",
	}
	root.AddCommand(driveCmd(), workCmd())
	return root
}
