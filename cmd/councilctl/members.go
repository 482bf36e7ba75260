package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"council/internal/council"
)

func newMembersCmd() *cobra.Command {
	var (
		file   string
		asYAML bool
	)
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List council members in speaking order",
		Long: `List the member table the gateway would use. With --file the table is read
from a YAML file and validated the same way the gateway validates it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := council.DefaultRegistry()
			if file != "" {
				loaded, err := council.LoadRegistryFile(file)
				if err != nil {
					return err
				}
				reg = loaded
			}
			members := reg.ListMembersByPriority()

			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(map[string]any{"members": members})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tROLE\tMODEL\tTOKENS")
			for i, m := range members {
				fmt.Fprintf(tw, "%d\t%s %s\t%s\t%d\n", i+1, m.Avatar, m.Role, m.ID, m.AllocatedTokens)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML member table to validate and list")
	cmd.Flags().BoolVarP(&asYAML, "yaml", "y", false, "Output as YAML")
	return cmd
}
