package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "councilctl",
		Short: "Talk to a council gateway",
		Long: `councilctl convenes the council through a running gateway, lists the
configured members and pulls individual analyses out of a saved decree.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newAskCmd(),
		newMembersCmd(),
		newExtractCmd(),
	)
	return root
}
