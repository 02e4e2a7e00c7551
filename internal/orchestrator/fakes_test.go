package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/lmstudio"
)

// fakeClient is a scripted lmstudio.Client.
type fakeClient struct {
	mu sync.Mutex

	models  []lmstudio.Model
	listErr error
	health  *lmstudio.Health

	// complete answers the n-th (0-based) completion call.
	complete func(n int, req lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error)

	requests    []lmstudio.CompletionRequest
	healthCalls int
	listCalls   int
	closed      bool
}

var _ lmstudio.Client = (*fakeClient)(nil)

func newFakeClient(models ...string) *fakeClient {
	fc := &fakeClient{}
	for _, m := range models {
		fc.models = append(fc.models, lmstudio.Model{ID: m})
	}
	fc.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return textResponse("ok text", 5, 5), nil
	}
	return fc
}

func (f *fakeClient) ListModels(context.Context) ([]lmstudio.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func (f *fakeClient) HealthCheck(context.Context) lmstudio.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	if f.health != nil {
		return *f.health
	}
	return lmstudio.Health{Status: lmstudio.StatusHealthy, ModelsCount: len(f.models)}
}

func (f *fakeClient) CreateCompletion(_ context.Context, req lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	fn := f.complete
	f.mu.Unlock()
	return fn(n, req)
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Prompt
	}
	return out
}

func textResponse(text string, promptTokens, completionTokens int) *lmstudio.CompletionResponse {
	return &lmstudio.CompletionResponse{
		Choices: []lmstudio.Choice{{Text: text}},
		Usage: &lmstudio.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

func serverError(msg string) error {
	return &lmstudio.Error{Kind: lmstudio.KindServer, Op: "completion", StatusCode: 500, Message: msg}
}

func authError() error {
	return &lmstudio.Error{Kind: lmstudio.KindAuth, Op: "completion", StatusCode: 401, Message: "invalid api key"}
}

// isFor reports whether req is the prompt for kind.
func isFor(req lmstudio.CompletionRequest, kind deliverable.Kind) bool {
	return strings.Contains(req.Prompt, "## Task: Generate "+kind.Title()+"\n")
}

// fakeClock is advanced by fakeSleeper so elapsed times are deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSleeper records requested waits and advances the clock instead of
// sleeping.
type fakeSleeper struct {
	mu    sync.Mutex
	clock *fakeClock
	waits []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	s.clock.Advance(d)
	return nil
}

func (s *fakeSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// recordingMetrics counts observations.
type recordingMetrics struct {
	mu       sync.Mutex
	attempts int
	failed   int
	outcomes []Outcome
	runs     []*Result
}

func (m *recordingMetrics) ObserveAttempt(_ deliverable.Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if err != nil {
		m.failed++
	}
}

func (m *recordingMetrics) ObserveOutcome(o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

func (m *recordingMetrics) ObserveRun(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
}

type testEngine struct {
	*Engine
	client  *fakeClient
	clock   *fakeClock
	sleeper *fakeSleeper
	metrics *recordingMetrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds an Engine over client with fake time. mutate may
// adjust the default config.
func newTestEngine(t *testing.T, client *fakeClient, mutate func(*Config), opts ...Option) *testEngine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := newFakeClock()
	sleeper := &fakeSleeper{clock: clock}
	metrics := &recordingMetrics{}
	base := []Option{
		WithLogger(discardLogger()),
		WithClock(clock.Now),
		WithSleeper(sleeper.Sleep),
		WithMetrics(metrics),
		WithIDGenerator(func() string { return "run-1" }),
	}
	e := NewEngine(cfg, client, append(base, opts...)...)
	t.Cleanup(func() { _ = e.Close() })
	return &testEngine{Engine: e, client: client, clock: clock, sleeper: sleeper, metrics: metrics}
}
