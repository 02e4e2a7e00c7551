package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/aiproto/internal/config"
	"github.com/dusk-indust/aiproto/internal/lmstudio"
	"github.com/dusk-indust/aiproto/internal/logging"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
	"github.com/dusk-indust/aiproto/internal/template"
)

// cli holds global flags and the state shared by every command.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    int
	logFile    string
	logFormat  string

	cfg       *config.File
	logger    *slog.Logger
	logCloser io.Closer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "aiproto",
		Short: "Generate prototyping documents with a local LM Studio model",
		Long: `aiproto turns a project idea into a set of prototyping documents
(problem statement, personas, use cases, tool outline, implementation
instructions, presentation prompt and effectiveness assessment) using a model
served by LM Studio.

Deliverables are generated in order and each one can build on the ones
before it. Results are merged into a single Markdown document by default.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.teardown()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default: ./aiproto.yaml or the user config directory)")
	pf.CountVarP(&c.verbose, "verbose", "v", "increase verbosity (-v info, -vv debug)")
	pf.StringVar(&c.logFile, "log-file", "", "write logs to a rotating file instead of stderr")
	pf.StringVar(&c.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newGenerateCmd(c),
		newModelsCmd(c),
		newHealthCmd(c),
		newDeliverablesCmd(c),
		newValidateCmd(c),
		newRenderCmd(c),
		newHistoryCmd(c),
		newStatusCmd(c),
		newServeCmd(c),
		newVersionCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return withCode(exitConfig, err)
	}
	c.cfg = cfg

	opts := logging.Options{
		Level:  logging.LevelForVerbosity(c.verbose, cfg.Logging.Level),
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}
	if c.logFormat != "" {
		opts.Format = c.logFormat
	}
	if c.logFile != "" {
		opts.File = c.logFile
	}
	logger, closer, err := logging.Setup(opts, c.stderr)
	if err != nil {
		return withCode(exitConfig, err)
	}
	c.logger = logger
	c.logCloser = closer
	if cfg.Source != "" {
		logger.Info("loaded config", "path", cfg.Source)
	}
	return nil
}

func (c *cli) teardown() error {
	if c.logCloser != nil {
		return c.logCloser.Close()
	}
	return nil
}

// newClient builds an LM Studio client for the loaded configuration.
func (c *cli) newClient(f *config.File) *lmstudio.HTTPClient {
	return lmstudio.NewHTTPClient(f.LMStudio.BaseURL, f.LMStudioOptions()...)
}

// newEngine builds an engine for f. The caller closes it.
func (c *cli) newEngine(f *config.File, opts ...orchestrator.Option) (*orchestrator.Engine, error) {
	oc, err := f.Orchestration()
	if err != nil {
		return nil, withCode(exitValidation, err)
	}
	if err := oc.Validate(); err != nil {
		return nil, withCode(exitValidation, err)
	}
	base := []orchestrator.Option{
		orchestrator.WithLogger(c.logger),
		orchestrator.WithTemplates(template.NewRenderer(f.Deliverables.TemplateDir)),
	}
	return orchestrator.NewEngine(oc, c.newClient(f), append(base, opts...)...), nil
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.stdout, format, args...)
}

func (c *cli) warnf(format string, args ...any) {
	fmt.Fprintf(c.stderr, format, args...)
}
