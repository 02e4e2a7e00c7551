package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/aiproto/internal/status"
)

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status [DIR]",
		Short: "Show which deliverables exist in an output directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := c.cfg.Output.Directory
			if len(args) == 1 {
				dir = args[0]
			}
			st := status.Scan(dir)

			c.printf("Output directory: %s\n\n", st.Dir)
			for i, d := range st.Deliverables {
				marker := "  "
				if !st.AllComplete && d.Kind == st.Next {
					marker = "->"
				}
				mark := color.RedString("✗")
				where := ""
				if d.Complete {
					mark = color.GreenString("✓")
					where = "  " + d.FilePath
				}
				c.printf("%s %d. %s %-34s%s\n", marker, i+1, mark, d.Kind, where)
			}
			if st.MergedPath != "" {
				c.printf("\nMerged document: %s\n", st.MergedPath)
			}
			if st.AllComplete {
				c.printf("\nAll deliverables complete\n")
			} else {
				c.printf("\nNext: %s\n", st.Next)
			}
			return nil
		},
	}
}
