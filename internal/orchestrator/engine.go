package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/lmstudio"
	"github.com/dusk-indust/aiproto/internal/template"
)

// Compile-time interface check.
var _ Orchestrator = (*Engine)(nil)

var (
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("orchestrator: engine closed")

	// ErrUnhealthy is returned when the backend health check fails.
	ErrUnhealthy = errors.New("orchestrator: backend unhealthy")

	// ErrNoModels is returned when the backend lists no models.
	ErrNoModels = errors.New("orchestrator: no models available")
)

type engineState int

const (
	stateUninitialized engineState = iota
	stateReady
	stateClosed
)

// Engine drives deliverable generation against one backend client. Runs on
// a single Engine are serialized.
type Engine struct {
	cfg       Config
	client    lmstudio.Client
	templates TemplateValidator
	logger    *slog.Logger
	metrics   Metrics
	progress  *ProgressReporter
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	newID     func() string

	runMu sync.Mutex

	mu       sync.Mutex
	state    engineState
	models   []string
	model    string
	warnings []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTemplates sets the template capability used by
// ValidateDeliverableTemplates.
func WithTemplates(t TemplateValidator) Option {
	return func(e *Engine) {
		e.templates = t
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSleeper replaces the backoff wait. The function must return early
// with ctx.Err() when ctx is done.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = fn
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator replaces the run ID source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// NewEngine creates an uninitialized Engine. The engine owns client and
// closes it in Close.
func NewEngine(cfg Config, client lmstudio.Client, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		client:   client,
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		progress: NewProgressReporter(),
		sleep:    sleepContext,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.templates == nil {
		e.templates = template.NewRenderer("")
	}
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Progress returns a channel that emits progress events. It is closed by
// Close.
func (e *Engine) Progress() <-chan ProgressEvent {
	return e.progress.Subscribe()
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Initialize checks backend health, lists models and selects one. A
// configured model that is not available is replaced by the first available
// model with a warning. On error the engine stays uninitialized.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(ctx)
}

func (e *Engine) initializeLocked(ctx context.Context) error {
	switch e.state {
	case stateClosed:
		return ErrClosed
	case stateReady:
		return nil
	}

	health := e.client.HealthCheck(ctx)
	if !health.Healthy() {
		e.logger.Error("backend health check failed",
			"base_url", health.BaseURL,
			"error_kind", string(health.ErrorKind),
			"error", health.Error)
		return fmt.Errorf("%w: %s", ErrUnhealthy, health.Error)
	}

	models, err := e.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: list models: %w", err)
	}
	ids := modelIDs(models)
	if len(ids) == 0 {
		e.logger.Error("no models loaded in backend")
		return ErrNoModels
	}

	// A model chosen with SetModel before initialization wins over config.
	want := e.cfg.Model
	if e.model != "" {
		want = e.model
	}
	selected := ids[0]
	e.warnings = nil
	if want != "" {
		if slices.Contains(ids, want) {
			selected = want
		} else {
			msg := fmt.Sprintf("model %q not available, using %q", want, selected)
			e.logger.Warn(msg, "available", ids)
			e.warnings = append(e.warnings, msg)
		}
	}

	e.models = ids
	e.model = selected
	e.state = stateReady
	e.logger.Info("engine initialized", "model", selected, "models", len(ids))
	return nil
}

// Close releases the client. The engine cannot be used afterwards. Close
// waits for an in-flight Orchestrate call and is safe to call more than once.
func (e *Engine) Close() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateClosed {
		return nil
	}
	e.state = stateClosed
	e.progress.Close()
	if err := e.client.Close(); err != nil {
		return fmt.Errorf("orchestrator: close client: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Orchestration
// ---------------------------------------------------------------------------

// Orchestrate generates kinds in order. Deliverable failures are reported in
// the Result, never as an error. If the engine cannot be initialized the
// Result has no outcomes and counts every kind as an error. An error is
// returned only for an unknown kind or a closed engine.
func (e *Engine) Orchestrate(ctx context.Context, input string, kinds []deliverable.Kind, extra map[string]any) (*Result, error) {
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("orchestrator: %w: %d", deliverable.ErrUnknownKind, int(k))
		}
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := e.now()
	res := &Result{
		RunID:     e.newID(),
		StartedAt: start,
		Config:    e.cfg,
	}

	e.mu.Lock()
	if e.state == stateClosed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	initErr := e.initializeLocked(ctx)
	model := e.model
	res.Warnings = slices.Clone(e.warnings)
	e.mu.Unlock()

	if initErr != nil {
		res.ErrorCount = len(kinds)
		res.InitError = initErr.Error()
		res.Elapsed = e.now().Sub(start)
		e.logger.Error("orchestration aborted: engine not initialized",
			"run_id", res.RunID,
			"requested", len(kinds),
			"error", initErr)
		e.metrics.ObserveRun(res)
		return res, nil
	}
	res.Model = model

	run := &runState{
		gen: &generator{
			client:  e.client,
			cfg:     e.cfg,
			model:   model,
			sleep:   e.sleep,
			now:     e.now,
			logger:  e.logger.With("run_id", res.RunID),
			metrics: e.metrics,
		},
		input:    input,
		kinds:    kinds,
		extra:    extra,
		chain:    e.cfg.ChainOutputs,
		budget:   e.cfg.ChainTokenBudget,
		progress: e.progress,
	}

	e.logger.Info("orchestration started",
		"run_id", res.RunID,
		"deliverables", len(kinds),
		"mode", string(e.cfg.Mode),
		"model", model)

	res.Outcomes = strategyFor(e.cfg.Mode, e.logger).Execute(ctx, run)
	res.Warnings = append(res.Warnings, run.warnings...)

	for _, o := range res.Outcomes {
		if o.Success {
			res.SuccessCount++
			if o.Usage != nil {
				res.TotalTokens += o.Usage.TotalTokens
			}
		} else {
			res.ErrorCount++
		}
	}

	if e.cfg.MergeIntoSingleDocument {
		res.MergedDocument = Merge(res.Outcomes, MergeOptions{
			IncludeTOC:  e.cfg.IncludeTableOfContents,
			Model:       model,
			GeneratedAt: e.now(),
		})
		for _, issue := range CheckCoherence(res.Outcomes) {
			e.logger.Warn("coherence issue",
				"run_id", res.RunID,
				"a", issue.A.String(),
				"b", issue.B.String(),
				"detail", issue.Description)
		}
	}

	res.Elapsed = e.now().Sub(start)
	e.logger.Info("orchestration complete",
		"run_id", res.RunID,
		"successful", res.SuccessCount,
		"failed", res.ErrorCount,
		"tokens", res.TotalTokens,
		"elapsed", res.Elapsed)
	e.metrics.ObserveRun(res)
	return res, nil
}

// ---------------------------------------------------------------------------
// Models and templates
// ---------------------------------------------------------------------------

// GetAvailableModels returns the cached model list, refreshing it when
// empty. Backend failures yield an empty list.
func (e *Engine) GetAvailableModels(ctx context.Context) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.availableLocked(ctx))
}

func (e *Engine) availableLocked(ctx context.Context) []string {
	if e.state == stateClosed {
		return []string{}
	}
	if len(e.models) == 0 {
		models, err := e.client.ListModels(ctx)
		if err != nil {
			e.logger.Warn("could not list models", "error", err)
			return []string{}
		}
		e.models = modelIDs(models)
	}
	return e.models
}

// SetModel selects name if the backend offers it and reports whether it
// did. An unknown name leaves the selection unchanged.
func (e *Engine) SetModel(ctx context.Context, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !slices.Contains(e.availableLocked(ctx), name) {
		e.logger.Warn("model not available", "model", name)
		return false
	}
	e.model = name
	e.logger.Info("model selected", "model", name)
	return true
}

// SelectedModel returns the model used for completions, empty before
// initialization.
func (e *Engine) SelectedModel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

// ValidateDeliverableTemplates checks the template for every kind. It does
// not contact the backend.
func (e *Engine) ValidateDeliverableTemplates() map[deliverable.Kind]template.Validation {
	out := make(map[deliverable.Kind]template.Validation, len(deliverable.All()))
	for _, k := range deliverable.All() {
		out[k] = e.templates.Validate(k)
	}
	return out
}

func modelIDs(models []lmstudio.Model) []string {
	ids := make([]string, 0, len(models))
	for _, m := range models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
