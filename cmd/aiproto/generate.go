package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/aiproto/internal/config"
	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/export"
	"github.com/dusk-indust/aiproto/internal/history"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
	"github.com/dusk-indust/aiproto/internal/output"
	"github.com/dusk-indust/aiproto/internal/prompt"
)

type generateFlags struct {
	prompt       string
	promptFile   string
	types        []string
	model        string
	url          string
	apiKey       string
	outputDir    string
	outputFormat string
	showHTML     bool
	raw          bool
	merge        bool
	toc          bool
	chain        bool
	maxTokens    int
	temperature  float64
	topP         float64
	mode         string
	retries      int
	context      map[string]string
	saveConfig   string
	dryRun       bool
	diagram      string
	exportPath   string
	history      string
}

func newGenerateCmd(c *cli) *cobra.Command {
	var fl generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate deliverables from a project idea",
		Example: `  aiproto generate -p "AI-powered customer service chatbot"
  aiproto generate -f idea.txt -t all --merge
  aiproto generate -p "E-commerce platform" -t personas -t use_cases
  aiproto generate -p "Mobile app" -m llama-7b -o ./docs --show-html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runGenerate(cmd, fl)
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringVarP(&fl.prompt, "prompt", "p", "", "project idea or brief")
	f.StringVarP(&fl.promptFile, "prompt-file", "f", "", "read the prompt from a file")
	f.StringSliceVarP(&fl.types, "types", "t", d.Deliverables.DefaultTypes, "deliverable types, repeatable or comma-separated; \"all\" for every type")
	f.StringVarP(&fl.model, "model", "m", "", "model to use (default: first available)")
	f.StringVar(&fl.url, "lm-studio-url", d.LMStudio.BaseURL, "LM Studio API base URL")
	f.StringVar(&fl.apiKey, "api-key", "", "LM Studio API key")
	f.StringVarP(&fl.outputDir, "output", "o", d.Output.Directory, "output directory")
	f.StringVar(&fl.outputFormat, "output-format", d.Output.Format, "output format: markdown or json")
	f.BoolVar(&fl.showHTML, "show-html", false, "also write an HTML preview (markdown only)")
	f.BoolVar(&fl.raw, "raw", false, "write the main document without formatting")
	f.BoolVar(&fl.merge, "merge", d.Output.Merge, "merge deliverables into a single document (--merge=false to disable)")
	f.BoolVar(&fl.toc, "toc", d.Output.IncludeTOC, "include a table of contents in the merged document")
	f.BoolVar(&fl.chain, "chain", d.Deliverables.ChainOutputs, "pass earlier deliverables as context to later ones")
	f.IntVar(&fl.maxTokens, "max-tokens", d.Model.MaxTokens, "maximum tokens per completion")
	f.Float64Var(&fl.temperature, "temperature", d.Model.Temperature, "sampling temperature (0-2)")
	f.Float64Var(&fl.topP, "top-p", d.Model.TopP, "nucleus sampling (0-1]")
	f.StringVar(&fl.mode, "completion-mode", d.Deliverables.CompletionMode, "sequential, batch or streaming")
	f.IntVar(&fl.retries, "retries", d.Deliverables.MaxRetries, "retries per deliverable after the first attempt")
	f.StringToStringVar(&fl.context, "context", nil, "extra prompt context as key=value, repeatable")
	f.StringVar(&fl.saveConfig, "save-config", "", "save the effective configuration to a YAML file")
	f.BoolVar(&fl.dryRun, "dry-run", false, "show what would be generated without contacting LM Studio")
	f.StringVar(&fl.diagram, "diagram", "", "write a Mermaid diagram of the run to a file (\"-\" for stdout)")
	f.StringVar(&fl.exportPath, "export", "", "write the full run as JSON to a file")
	f.StringVar(&fl.history, "history", "", "record the run in the history store at this path")

	return cmd
}

// applyFlags overlays explicitly set flags onto the loaded configuration.
func applyFlags(cmd *cobra.Command, f *config.File, fl generateFlags) {
	changed := cmd.Flags().Changed
	if changed("types") {
		f.Deliverables.DefaultTypes = fl.types
	}
	if changed("model") {
		f.Model.Name = fl.model
	}
	if changed("lm-studio-url") {
		f.LMStudio.BaseURL = fl.url
	}
	if changed("api-key") {
		f.LMStudio.APIKey = fl.apiKey
	}
	if changed("output") {
		f.Output.Directory = fl.outputDir
	}
	if changed("output-format") {
		f.Output.Format = fl.outputFormat
	}
	if changed("merge") {
		f.Output.Merge = fl.merge
	}
	if changed("toc") {
		f.Output.IncludeTOC = fl.toc
	}
	if changed("chain") {
		f.Deliverables.ChainOutputs = fl.chain
	}
	if changed("max-tokens") {
		f.Model.MaxTokens = fl.maxTokens
	}
	if changed("temperature") {
		f.Model.Temperature = fl.temperature
	}
	if changed("top-p") {
		f.Model.TopP = fl.topP
	}
	if changed("completion-mode") {
		f.Deliverables.CompletionMode = fl.mode
	}
	if changed("retries") {
		f.Deliverables.MaxRetries = fl.retries
	}
	if changed("history") {
		f.History.Path = fl.history
	}
}

func readPrompt(fl generateFlags) (string, error) {
	if fl.prompt == "" && fl.promptFile == "" {
		return "", withCodef(exitValidation, "either --prompt or --prompt-file must be provided")
	}
	if fl.prompt != "" && fl.promptFile != "" {
		return "", withCodef(exitValidation, "--prompt and --prompt-file cannot be used together")
	}
	text := fl.prompt
	if fl.promptFile != "" {
		info, err := os.Stat(fl.promptFile)
		if err != nil {
			return "", withCodef(exitFile, "file not found: %s", fl.promptFile)
		}
		if info.IsDir() {
			return "", withCodef(exitFile, "path is not a file: %s", fl.promptFile)
		}
		data, err := os.ReadFile(fl.promptFile)
		if err != nil {
			return "", withCodef(exitFile, "failed to read prompt file: %v", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", withCodef(exitValidation, "prompt cannot be empty")
	}
	return text, nil
}

func availableTypes() string {
	names := make([]string, 0, len(deliverable.All()))
	for _, k := range deliverable.All() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

func (c *cli) runGenerate(cmd *cobra.Command, fl generateFlags) error {
	ctx := cmd.Context()

	input, err := readPrompt(fl)
	if err != nil {
		return err
	}

	f := *c.cfg
	applyFlags(cmd, &f, fl)

	kinds, err := deliverable.ParseList(f.Deliverables.DefaultTypes)
	if err != nil {
		return withCodef(exitValidation, "%v\nAvailable types: %s", err, availableTypes())
	}
	if len(kinds) == 0 {
		return withCodef(exitValidation, "no deliverable types given\nAvailable types: %s", availableTypes())
	}
	if err := f.Validate(); err != nil {
		return withCode(exitValidation, err)
	}
	format, err := output.ParseFormat(f.Output.Format)
	if err != nil {
		return withCode(exitValidation, err)
	}
	if err := output.EnsureDir(f.Output.Directory); err != nil {
		return withCode(exitFile, err)
	}

	if fl.saveConfig != "" {
		if err := config.Save(fl.saveConfig, &f); err != nil {
			c.warnf("Warning: failed to save config: %v\n", err)
		} else {
			c.printf("Configuration saved to %s\n", fl.saveConfig)
		}
	}

	extra := make(map[string]any, len(fl.context))
	for k, v := range fl.context {
		extra[k] = v
	}

	if fl.dryRun {
		return c.dryRun(&f, input, kinds, extra)
	}

	engine, err := c.newEngine(&f)
	if err != nil {
		return err
	}
	defer engine.Close()

	c.printf("Testing connection to LM Studio at %s...\n", f.LMStudio.BaseURL)
	if err := engine.Initialize(ctx); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrNoModels):
			return withCodef(exitModel, "no models available in LM Studio. Please load a model first")
		default:
			return withCodef(exitConnection, "cannot connect to LM Studio at %s. Please ensure LM Studio is running and accessible (%v)", f.LMStudio.BaseURL, err)
		}
	}
	c.printf("%s Connected to LM Studio\n", color.GreenString("✓"))

	if f.Model.Name != "" {
		available := engine.GetAvailableModels(ctx)
		if !slices.Contains(available, f.Model.Name) {
			return withCodef(exitModel, "model '%s' not found. Available models: %s", f.Model.Name, strings.Join(available, ", "))
		}
	}
	c.printf("Using model: %s\n", engine.SelectedModel())

	c.printf("\nGenerating %d deliverable(s)...\n", len(kinds))

	events := engine.Progress()
	progressCtx, stopProgress := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.reportProgress(progressCtx, events)
	}()

	res, err := engine.Orchestrate(ctx, input, kinds, extra)
	stopProgress()
	wg.Wait()
	if err != nil {
		if errors.Is(err, deliverable.ErrUnknownKind) {
			return withCode(exitValidation, err)
		}
		return withCode(exitGeneral, err)
	}

	return c.finishRun(ctx, &f, format, fl, res, len(kinds))
}

// reportProgress prints events until ctx is done, then flushes whatever is
// still buffered.
func (c *cli) reportProgress(ctx context.Context, events <-chan orchestrator.ProgressEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintln(c.stderr, orchestrator.FormatProgress(ev))
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					fmt.Fprintln(c.stderr, orchestrator.FormatProgress(ev))
				default:
					return
				}
			}
		}
	}
}

func (c *cli) finishRun(ctx context.Context, f *config.File, format output.Format, fl generateFlags, res *orchestrator.Result, requested int) error {
	for _, w := range res.Warnings {
		c.warnf("Warning: %s\n", w)
	}
	if res.InitError != "" {
		return withCodef(exitConnection, "%s", res.InitError)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if res.ErrorCount > 0 {
		c.warnf("\nWarning: %d deliverable(s) failed to generate:\n", res.ErrorCount)
		for _, o := range res.Failed() {
			c.warnf("  - %s: %s\n", o.Kind, o.Error)
		}
	}

	if f.History.Path != "" {
		c.recordHistory(ctx, f.History.Path, res)
	}

	if res.SuccessCount == 0 {
		return withCodef(exitGeneral, "all deliverables failed to generate")
	}

	w := output.Writer{Dir: f.Output.Directory, Format: format, Raw: fl.raw, HTML: fl.showHTML}
	written, err := w.Save(res)
	if err != nil {
		return withCode(exitFile, err)
	}
	check := color.GreenString("✓")
	if written.Main != "" {
		c.printf("\n%s Generated content saved to: %s\n", check, written.Main)
	}
	if written.HTML != "" {
		c.printf("%s HTML preview saved to: %s\n", check, written.HTML)
	}

	if fl.diagram != "" {
		if err := c.writeArtifact(fl.diagram, []byte(export.Mermaid(res))); err != nil {
			return err
		}
	}
	if fl.exportPath != "" {
		data, err := export.JSON(res)
		if err != nil {
			return withCode(exitGeneral, err)
		}
		if err := c.writeArtifact(fl.exportPath, data); err != nil {
			return err
		}
	}

	c.printSummary(res, requested)
	if res.ErrorCount > 0 {
		return &exitError{code: exitGeneral}
	}
	return nil
}

func (c *cli) printSummary(res *orchestrator.Result, requested int) {
	line := color.GreenString
	switch {
	case res.SuccessCount == 0:
		line = color.RedString
	case res.ErrorCount > 0:
		line = color.YellowString
	}
	c.printf("\n=== Generation Summary ===\n")
	c.printf("%s\n", line("Successful: %d/%d", res.SuccessCount, requested))
	c.printf("Total tokens used: %d\n", res.TotalTokens)
	c.printf("Total time: %.2fs\n", res.Elapsed.Seconds())
}

func (c *cli) recordHistory(ctx context.Context, path string, res *orchestrator.Result) {
	store, err := history.Open(ctx, path)
	if err != nil {
		c.warnf("Warning: failed to open history: %v\n", err)
		return
	}
	defer store.Close()
	if err := store.RecordRun(ctx, history.FromResult(res)); err != nil {
		c.warnf("Warning: failed to record run: %v\n", err)
	}
}

// writeArtifact writes data to path, or to stdout when path is "-".
func (c *cli) writeArtifact(path string, data []byte) error {
	if path == "-" {
		_, err := c.stdout.Write(data)
		return err
	}
	if err := output.WriteFileAtomic(path, data, 0o644); err != nil {
		return withCodef(exitFile, "failed to write %s: %v", path, err)
	}
	c.printf("%s Saved %s\n", color.GreenString("✓"), path)
	return nil
}

// truncateRunes shortens s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (c *cli) dryRun(f *config.File, input string, kinds []deliverable.Kind, extra map[string]any) error {
	preview := truncateRunes(input, 100)
	model := f.Model.Name
	if model == "" {
		model = "first available"
	}

	c.printf("\n=== DRY RUN - No generation will occur ===\n")
	c.printf("Prompt: %s\n", preview)
	c.printf("Model: %s\n", model)
	c.printf("LM Studio URL: %s\n", f.LMStudio.BaseURL)
	c.printf("Output directory: %s\n", f.Output.Directory)
	c.printf("Output format: %s\n", f.Output.Format)
	c.printf("Merge documents: %t\n", f.Output.Merge)
	c.printf("Deliverables:\n")

	total := 0
	for i, k := range kinds {
		p, err := prompt.Build(k, input, extra)
		if err != nil {
			return withCode(exitValidation, err)
		}
		n := prompt.EstimateTokens(p)
		total += n
		c.printf("  %d. %-34s ~%d prompt tokens\n", i+1, k.Title(), n)
	}
	c.printf("Estimated prompt tokens: %d (plus up to %d completion tokens each)\n", total, f.Model.MaxTokens)
	if f.Deliverables.ChainOutputs && len(kinds) > 1 {
		c.printf("Later prompts grow as earlier deliverables are chained in.\n")
	}
	return nil
}
