// Package cmd implements the bftbank command-line surface: running a
// peer node, running the registry service, and the operator's
// interactive menu (spec §6).
package cmd

import "github.com/spf13/cobra"

// New builds the bftbank root command with its three subcommands.
func New() *cobra.Command {
	root := &cobra.Command{
		Use:           "bftbank",
		Short:         "Replicated banking ledger over a Byzantine cross-verification protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd())
	root.AddCommand(registryCmd())
	root.AddCommand(menuCmd())
	return root
}
