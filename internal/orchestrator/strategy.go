package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/prompt"
)

// PriorDeliverablesKey is the context key under which earlier successful
// outputs are passed to later prompts.
const PriorDeliverablesKey = "prior_deliverables"

// Compile-time checks.
var (
	_ executionStrategy = sequentialStrategy{}
	_ executionStrategy = (*fallbackStrategy)(nil)
)

// executionStrategy turns a run into one Outcome per requested kind, in
// request order.
type executionStrategy interface {
	Mode() CompletionMode
	Execute(ctx context.Context, run *runState) []Outcome
}

// runState is the per-call input shared with a strategy.
type runState struct {
	gen      *generator
	input    string
	kinds    []deliverable.Kind
	extra    map[string]any
	chain    bool
	budget   int
	progress *ProgressReporter
	warnings []string
}

// contextFor returns the extra context for the next prompt. With chaining
// enabled it adds the content of successful prior outcomes, newest first,
// while their estimated tokens fit the budget.
func (r *runState) contextFor(prior []Outcome) map[string]any {
	if !r.chain {
		return r.extra
	}
	prev := make(map[string]string)
	used := 0
	for i := len(prior) - 1; i >= 0; i-- {
		o := prior[i]
		if !o.Success {
			continue
		}
		n := prompt.EstimateTokens(o.Content)
		if used+n > r.budget {
			break
		}
		used += n
		prev[o.Kind.String()] = o.Content
	}
	if len(prev) == 0 {
		return r.extra
	}
	ctx := make(map[string]any, len(r.extra)+1)
	for k, v := range r.extra {
		ctx[k] = v
	}
	ctx[PriorDeliverablesKey] = prev
	return ctx
}

func (r *runState) emit(i int, kind deliverable.Kind, status ProgressStatus, msg string) {
	if r.progress == nil {
		return
	}
	r.progress.Emit(ProgressEvent{
		Kind:    kind,
		Index:   i + 1,
		Total:   len(r.kinds),
		Status:  status,
		Message: msg,
	})
}

// strategyFor returns the strategy for mode. Unknown modes run sequentially.
func strategyFor(mode CompletionMode, logger *slog.Logger) executionStrategy {
	switch mode {
	case ModeBatch, ModeStreaming:
		return &fallbackStrategy{mode: mode, next: sequentialStrategy{}, logger: logger}
	default:
		return sequentialStrategy{}
	}
}

// ---------------------------------------------------------------------------
// Sequential
// ---------------------------------------------------------------------------

// sequentialStrategy generates one deliverable at a time. Cancellation is
// checked before each deliverable; kinds not started are recorded as failed.
type sequentialStrategy struct{}

func (sequentialStrategy) Mode() CompletionMode { return ModeSequential }

func (sequentialStrategy) Execute(ctx context.Context, run *runState) []Outcome {
	outcomes := make([]Outcome, 0, len(run.kinds))
	for i, kind := range run.kinds {
		run.emit(i, kind, ProgressPending, "")
	}

	for i, kind := range run.kinds {
		if err := ctx.Err(); err != nil {
			o := Outcome{Kind: kind, Error: fmt.Sprintf("not started: %v", err)}
			run.gen.metrics.ObserveOutcome(o)
			run.emit(i, kind, ProgressFailed, o.Error)
			outcomes = append(outcomes, o)
			continue
		}

		run.emit(i, kind, ProgressWorking, "")
		o := run.gen.generate(ctx, kind, run.input, run.contextFor(outcomes))
		run.gen.metrics.ObserveOutcome(o)
		if o.Success {
			run.emit(i, kind, ProgressComplete, "")
		} else {
			run.emit(i, kind, ProgressFailed, o.Error)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// ---------------------------------------------------------------------------
// Batch / streaming
// ---------------------------------------------------------------------------

// fallbackStrategy stands in for a mode without its own implementation. It
// records a warning and delegates to next.
type fallbackStrategy struct {
	mode   CompletionMode
	next   executionStrategy
	logger *slog.Logger
}

func (f *fallbackStrategy) Mode() CompletionMode { return f.mode }

func (f *fallbackStrategy) Execute(ctx context.Context, run *runState) []Outcome {
	msg := fmt.Sprintf("%s mode not yet supported, falling back to %s", f.mode, f.next.Mode())
	f.logger.Warn(msg)
	run.warnings = append(run.warnings, msg)
	return f.next.Execute(ctx, run)
}
