package main

import (
	"errors"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/aiproto/internal/export"
	"github.com/dusk-indust/aiproto/internal/history"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		path    string
		limit   int
		diagram bool
	)
	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recorded runs or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("path") {
				path = c.cfg.History.Path
			}
			if path == "" {
				return withCodef(exitConfig, "no history store configured (set history.path or pass --path)")
			}
			if !fileExists(path) {
				return withCodef(exitConfig, "history store not found: %s", path)
			}

			store, err := history.Open(ctx, path)
			if err != nil {
				return withCode(exitConfig, err)
			}
			defer store.Close()

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if errors.Is(err, history.ErrNotFound) {
					return withCode(exitValidation, err)
				}
				if err != nil {
					return withCode(exitGeneral, err)
				}
				c.printRun(run)
				if diagram {
					c.printf("\n%s", export.MermaidRecord(run))
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return withCode(exitGeneral, err)
			}
			if len(runs) == 0 {
				c.printf("No runs recorded\n")
				return nil
			}
			tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			c.printf("Runs (%d):\n", len(runs))
			for _, r := range runs {
				tw.Write([]byte(r.ID + "\t" +
					r.StartedAt.Local().Format(time.DateTime) + "\t" +
					orDash(r.Model) + "\t" +
					successRatio(r.SuccessCount, len(r.Deliverables)) + "\t" +
					r.Elapsed.Round(time.Millisecond).String() + "\n"))
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&path, "path", "", "history store path (default: history.path from config)")
	f.IntVar(&limit, "limit", 20, "maximum number of runs to list (0 for all)")
	f.BoolVar(&diagram, "diagram", false, "print a Mermaid diagram of the run")
	return cmd
}

func (c *cli) printRun(r *history.RunRecord) {
	c.printf("Run:      %s\n", r.ID)
	c.printf("Started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	c.printf("Model:    %s\n", orDash(r.Model))
	c.printf("Mode:     %s\n", r.Mode)
	c.printf("Elapsed:  %s\n", r.Elapsed.Round(time.Millisecond))
	c.printf("Tokens:   %d\n", r.TotalTokens)
	c.printf("Result:   %s succeeded\n", successRatio(r.SuccessCount, len(r.Deliverables)))
	if r.InitError != "" {
		c.printf("Init error: %s\n", r.InitError)
	}
	c.printf("\nDeliverables:\n")
	for _, d := range r.Deliverables {
		mark := color.GreenString("✓")
		if !d.Success {
			mark = color.RedString("✗")
		}
		c.printf("  %s %-34s attempts=%d tokens=%d %s\n",
			mark, d.Kind, d.Attempts, d.Tokens, d.Elapsed.Round(time.Millisecond))
		if d.Error != "" {
			c.printf("      %s\n", d.Error)
		}
	}
}

func successRatio(ok, total int) string {
	return color.New(color.Bold).Sprintf("%d/%d", ok, total)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
