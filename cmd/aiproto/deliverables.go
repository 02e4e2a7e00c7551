package main

import (
	"errors"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/output"
	"github.com/dusk-indust/aiproto/internal/template"
)

func newDeliverablesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "deliverables",
		Short: "List the deliverable types in generation order",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			c.printf("Available deliverable types:\n\n")
			for i, k := range deliverable.All() {
				c.printf("%d. %s\n", i+1, color.New(color.Bold).Sprint(k.String()))
				c.printf("   %s\n", k.Title())
				c.printf("   %s\n\n", k.Description())
			}
			c.printf("Use \"all\" to generate every type.\n")
			return nil
		},
	}
}

func newValidateCmd(c *cli) *cobra.Command {
	var templateDir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and deliverable templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := *c.cfg
			if cmd.Flags().Changed("template-dir") {
				f.Deliverables.TemplateDir = templateDir
			}

			var problems []error
			if err := f.Validate(); err != nil {
				c.printf("%s Configuration: %v\n", color.RedString("✗"), err)
				problems = append(problems, err)
			} else {
				c.printf("%s Configuration\n", color.GreenString("✓"))
			}
			if _, err := deliverable.ParseList(f.Deliverables.DefaultTypes); err != nil {
				c.printf("%s Default types: %v\n", color.RedString("✗"), err)
				problems = append(problems, err)
			}

			r := template.NewRenderer(f.Deliverables.TemplateDir)
			c.printf("\nTemplates (%s):\n", r.Source())
			for _, k := range deliverable.All() {
				v := r.Validate(k)
				if v.Valid {
					c.printf("  %s %s\n", color.GreenString("✓"), k)
					continue
				}
				c.printf("  %s %s: %s\n", color.RedString("✗"), k, v.Error)
				problems = append(problems, errors.New(k.String()+": "+v.Error))
			}

			if len(problems) > 0 {
				return withCodef(exitValidation, "%d problem(s) found", len(problems))
			}
			c.printf("\nAll checks passed\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&templateDir, "template-dir", "", "template directory (default: built-in templates)")
	return cmd
}

func newRenderCmd(c *cli) *cobra.Command {
	var (
		fl          generateFlags
		templateDir string
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "render TYPE",
		Short: "Render a deliverable skeleton from its template without a model",
		Long: `Render fills a deliverable's template from a structured brief, without
contacting LM Studio. Lines such as "Project: ...", "Users: a, b" or
"Features: x, y" in the prompt populate the matching template fields.`,
		Example: `  aiproto render personas -p "Project: Shelf
Users: librarians, students"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := deliverable.Parse(args[0])
			if err != nil {
				return withCodef(exitValidation, "%v\nAvailable types: %s", err, availableTypes())
			}
			input, err := readPrompt(fl)
			if err != nil {
				return err
			}
			dir := c.cfg.Deliverables.TemplateDir
			if cmd.Flags().Changed("template-dir") {
				dir = templateDir
			}
			doc, err := template.NewRenderer(dir).RenderInput(kind, input)
			if err != nil {
				return withCode(exitValidation, err)
			}
			if outPath == "" {
				c.printf("%s", doc)
				if !strings.HasSuffix(doc, "\n") {
					c.printf("\n")
				}
				return nil
			}
			if err := output.WriteFileAtomic(outPath, []byte(doc), 0o644); err != nil {
				return withCodef(exitFile, "failed to write %s: %v", outPath, err)
			}
			c.printf("%s Saved %s\n", color.GreenString("✓"), outPath)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&fl.prompt, "prompt", "p", "", "project brief")
	f.StringVarP(&fl.promptFile, "prompt-file", "f", "", "read the brief from a file")
	f.StringVar(&templateDir, "template-dir", "", "template directory (default: built-in templates)")
	f.StringVarP(&outPath, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// fileExists reports whether path names an existing regular file or
// directory.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
