package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/semaphore"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/export"
	"github.com/dusk-indust/aiproto/internal/history"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
	"github.com/dusk-indust/aiproto/internal/output"
	"github.com/dusk-indust/aiproto/internal/status"
)

// ErrBusy is returned when a generation run is already in progress.
var ErrBusy = errors.New("a generation run is already in progress")

// ErrNoHistory is returned by list_runs when no history store is configured.
var ErrNoHistory = errors.New("run history is not configured")

const defaultRunLimit = 20

// Service handles MCP tool calls. It wraps an Orchestrator and allows one
// generation run at a time.
type Service struct {
	orch      orchestrator.Orchestrator
	store     history.Store
	outputDir string
	format    output.Format
	logger    *slog.Logger
	runs      *semaphore.Weighted
}

// Option configures a Service.
type Option func(*Service)

// WithHistory records every run in store.
func WithHistory(store history.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithOutput sets where generate_deliverables writes files on request, and
// the directory get_status inspects by default.
func WithOutput(dir string, format output.Format) Option {
	return func(s *Service) {
		s.outputDir = dir
		s.format = format
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service around orch.
func NewService(orch orchestrator.Orchestrator, opts ...Option) *Service {
	s := &Service{
		orch:      orch,
		outputDir: "./output",
		format:    output.FormatMarkdown,
		logger:    slog.Default(),
		runs:      semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateDeliverables runs the engine for the requested deliverables.
func (s *Service) GenerateDeliverables(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateInput,
) (*mcp.CallToolResult, GenerateOutput, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, GenerateOutput{}, errors.New("prompt is required")
	}
	names := input.Types
	if len(names) == 0 {
		names = []string{deliverable.ProblemStatement.String()}
	}
	kinds, err := deliverable.ParseList(names)
	if err != nil {
		return nil, GenerateOutput{}, err
	}

	if !s.runs.TryAcquire(1) {
		return nil, GenerateOutput{}, ErrBusy
	}
	defer s.runs.Release(1)

	res, err := s.orch.Orchestrate(ctx, input.Prompt, kinds, input.Context)
	if err != nil {
		return nil, GenerateOutput{}, err
	}

	out := GenerateOutput{Run: *export.Run(res)}

	if s.store != nil {
		if err := s.store.RecordRun(ctx, history.FromResult(res)); err != nil {
			s.logger.Warn("record run failed", "run", res.RunID, "error", err)
		}
	}

	if input.Write && res.SuccessCount > 0 {
		w := output.Writer{Dir: s.outputDir, Format: s.format}
		written, err := w.Save(res)
		if err != nil {
			return nil, out, fmt.Errorf("write output: %w", err)
		}
		out.FilesWritten = append(out.FilesWritten, written.Deliverables...)
		if written.Main != "" {
			out.FilesWritten = append(out.FilesWritten, written.Main)
		}
	}
	return nil, out, nil
}

// ListDeliverables returns every deliverable type in chain order.
func (s *Service) ListDeliverables(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ListDeliverablesInput,
) (*mcp.CallToolResult, ListDeliverablesOutput, error) {
	var out ListDeliverablesOutput
	for _, k := range deliverable.All() {
		out.Deliverables = append(out.Deliverables, DeliverableInfo{
			Type:        k.String(),
			Title:       k.Title(),
			Description: k.Description(),
		})
	}
	return nil, out, nil
}

// ListModels returns the models the backend reports, empty when unreachable.
func (s *Service) ListModels(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListModelsInput,
) (*mcp.CallToolResult, ListModelsOutput, error) {
	models := s.orch.GetAvailableModels(ctx)
	if models == nil {
		models = []string{}
	}
	return nil, ListModelsOutput{Models: models}, nil
}

// ValidateTemplates checks every deliverable's template.
func (s *Service) ValidateTemplates(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ ValidateTemplatesInput,
) (*mcp.CallToolResult, ValidateTemplatesOutput, error) {
	checks := s.orch.ValidateDeliverableTemplates()
	out := ValidateTemplatesOutput{Templates: []TemplateStatus{}, AllValid: true}
	for _, k := range deliverable.All() {
		v, ok := checks[k]
		if !ok {
			continue
		}
		out.Templates = append(out.Templates, TemplateStatus{
			Type:    k.String(),
			Valid:   v.Valid,
			Exists:  v.Exists,
			CanLoad: v.CanLoad,
			Path:    v.Path,
			Error:   v.Error,
		})
		out.AllValid = out.AllValid && v.Valid
	}
	return nil, out, nil
}

// ListRuns returns recorded runs, newest first.
func (s *Service) ListRuns(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListRunsInput,
) (*mcp.CallToolResult, ListRunsOutput, error) {
	if s.store == nil {
		return nil, ListRunsOutput{}, ErrNoHistory
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultRunLimit
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, ListRunsOutput{}, fmt.Errorf("list runs: %w", err)
	}

	out := ListRunsOutput{Runs: make([]RunSummary, 0, len(runs))}
	for i := range runs {
		r := &runs[i]
		kinds := make([]string, 0, len(r.Deliverables))
		for _, d := range r.Deliverables {
			kinds = append(kinds, d.Kind)
		}
		out.Runs = append(out.Runs, RunSummary{
			ID:           r.ID,
			StartedAt:    r.StartedAt.UTC().Format(time.RFC3339),
			Model:        r.Model,
			Seconds:      r.Elapsed.Seconds(),
			TotalTokens:  r.TotalTokens,
			SuccessCount: r.SuccessCount,
			ErrorCount:   r.ErrorCount,
			Deliverables: kinds,
			Diagram:      export.MermaidRecord(r),
		})
	}
	return nil, out, nil
}

// GetStatus reports which deliverable files exist in an output directory.
func (s *Service) GetStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetStatusInput,
) (*mcp.CallToolResult, GetStatusOutput, error) {
	dir := input.Dir
	if dir == "" {
		dir = s.outputDir
	}
	st := status.Scan(dir)

	out := GetStatusOutput{Dir: dir, Completed: []string{}, Merged: st.MergedPath != ""}
	for _, d := range st.Deliverables {
		if d.Complete {
			out.Completed = append(out.Completed, d.Kind.String())
		}
	}
	if !st.AllComplete {
		out.Next = st.Next.String()
	}
	return nil, out, nil
}
