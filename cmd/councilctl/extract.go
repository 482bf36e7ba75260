package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"council/internal/council"
)

func newExtractCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "extract [report.md]",
		Short: "Print the individual analyses embedded in a decree",
		Example: `
# All sections of a saved decree
councilctl extract decree.md

# Only the Philosopher's text, exactly as it was produced
councilctl ask "Is nuclear power green?" | councilctl extract --role "The Philosopher"
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open report: %w", err)
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}
			report := string(raw)
			out := cmd.OutOrStdout()

			if role != "" {
				text, ok := council.ExtractSection(report, council.Role(role))
				if !ok {
					return fmt.Errorf("no section for %q", role)
				}
				_, err := io.WriteString(out, text)
				return err
			}
			sections := council.ExtractAppendix(report)
			if len(sections) == 0 {
				return fmt.Errorf("no individual analyses found")
			}
			for i, s := range sections {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, color.New(color.Bold, color.FgCyan).Sprint(s.Role))
				fmt.Fprintln(out, s.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", "", "Print only this role's section, byte for byte")
	return cmd
}
