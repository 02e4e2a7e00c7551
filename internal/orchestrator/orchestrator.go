// Package orchestrator sequences deliverable generation against an LM Studio
// backend: model selection, prompting, retry with backoff, partial-failure
// aggregation and document merging.
package orchestrator

import (
	"context"
	"time"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/template"
)

// TokenUsage is the token accounting for one successful completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Outcome is the result of generating one deliverable.
type Outcome struct {
	Kind     deliverable.Kind `json:"deliverable_type"`
	Content  string           `json:"content"`
	Success  bool             `json:"success"`
	Error    string           `json:"error_message,omitempty"`
	Elapsed  time.Duration    `json:"generation_time"`
	Usage    *TokenUsage      `json:"token_usage,omitempty"`
	Prompt   string           `json:"prompt_used,omitempty"`
	Attempts int              `json:"attempts"`
}

// Result aggregates one Orchestrate call.
type Result struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Outcomes       []Outcome     `json:"deliverables"`
	MergedDocument string        `json:"merged_document,omitempty"`
	Elapsed        time.Duration `json:"total_time"`
	TotalTokens    int           `json:"total_tokens_used"`
	SuccessCount   int           `json:"success_count"`
	ErrorCount     int           `json:"error_count"`
	Model          string        `json:"model,omitempty"`
	Config         Config        `json:"config"`
	Warnings       []string      `json:"warnings,omitempty"`
	InitError      string        `json:"init_error,omitempty"`
}

// Succeeded returns the successful outcomes in request order.
func (r *Result) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Success {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns the failed outcomes in request order.
func (r *Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}

// ProgressEvent is emitted while a run is in flight.
type ProgressEvent struct {
	Kind    deliverable.Kind
	Index   int // 1-based position in the request
	Total   int
	Status  ProgressStatus
	Message string
}

// ProgressStatus is the state of a deliverable within a run.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// TemplateValidator is the template capability used for self-checks.
type TemplateValidator interface {
	Validate(kind deliverable.Kind) template.Validation
}

// Metrics receives observations about completions and runs.
type Metrics interface {
	// ObserveAttempt is called after every completion attempt.
	ObserveAttempt(kind deliverable.Kind, err error)
	// ObserveOutcome is called once per finished deliverable.
	ObserveOutcome(o Outcome)
	// ObserveRun is called once per finished Orchestrate call.
	ObserveRun(r *Result)
}

// Orchestrator is the engine surface used by the CLI and MCP tools.
type Orchestrator interface {
	// Orchestrate generates kinds in order from input and extra context.
	Orchestrate(ctx context.Context, input string, kinds []deliverable.Kind, extra map[string]any) (*Result, error)

	// GetAvailableModels lists backend models, empty when unreachable.
	GetAvailableModels(ctx context.Context) []string

	// ValidateDeliverableTemplates checks every kind's template.
	ValidateDeliverableTemplates() map[deliverable.Kind]template.Validation

	// Progress returns a channel that emits progress events.
	Progress() <-chan ProgressEvent
}

type noopMetrics struct{}

func (noopMetrics) ObserveAttempt(deliverable.Kind, error) {}
func (noopMetrics) ObserveOutcome(Outcome)                 {}
func (noopMetrics) ObserveRun(*Result)                     {}
