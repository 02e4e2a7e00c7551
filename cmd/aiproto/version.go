package main

import "github.com/spf13/cobra"

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			c.printf("aiproto version %s\n", version)
		},
	}
}
