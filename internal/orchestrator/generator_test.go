package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/lmstudio"
)

// newTestGenerator returns a generator over client with fake time and the
// given retry budget.
func newTestGenerator(client *fakeClient, retries int) (*generator, *fakeSleeper, *fakeClock) {
	clock := newFakeClock()
	sleeper := &fakeSleeper{clock: clock}
	cfg := DefaultConfig()
	cfg.MaxRetriesPerDeliverable = retries
	return &generator{
		client:  client,
		cfg:     cfg,
		model:   "m",
		sleep:   sleeper.Sleep,
		now:     clock.Now,
		logger:  discardLogger(),
		metrics: noopMetrics{},
	}, sleeper, clock
}

func TestGenerate_Success(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return textResponse("\n  generated body \n", 7, 3), nil
	}
	g, sleeper, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.ProblemStatement, "input", nil)

	assert.True(t, o.Success)
	assert.Equal(t, "generated body", o.Content)
	assert.Empty(t, o.Error)
	require.NotNil(t, o.Usage)
	assert.Equal(t, TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, *o.Usage)
	assert.Contains(t, o.Prompt, "## Task: Generate Problem Statement")
	assert.Equal(t, 1, o.Attempts)
	assert.Empty(t, sleeper.Waits())

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, o.Prompt, req.Prompt)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.InDelta(t, 0.9, req.TopP, 1e-9)
}

func TestGenerate_NoUsageReported(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return &lmstudio.CompletionResponse{Choices: []lmstudio.Choice{{Text: "x"}}}, nil
	}
	g, _, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.Personas, "input", nil)
	assert.True(t, o.Success)
	assert.Nil(t, o.Usage)
}

func TestGenerate_RetryBoundary_SucceedsOnLastAttempt(t *testing.T) {
	const retries = 3
	client := newFakeClient("m")
	client.complete = func(n int, _ lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		if n < retries {
			return nil, serverError("overloaded")
		}
		return textResponse("finally", 1, 1), nil
	}
	g, sleeper, _ := newTestGenerator(client, retries)

	o := g.generate(context.Background(), deliverable.UseCases, "input", nil)

	assert.True(t, o.Success)
	assert.Equal(t, "finally", o.Content)
	assert.Equal(t, retries+1, client.calls())
	assert.Equal(t, retries+1, o.Attempts)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, sleeper.Waits())
}

func TestGenerate_RetryBoundary_ExhaustsBudget(t *testing.T) {
	const retries = 3
	client := newFakeClient("m")
	client.complete = func(n int, _ lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		if n == retries {
			return nil, serverError("final failure")
		}
		return nil, serverError("overloaded")
	}
	g, sleeper, _ := newTestGenerator(client, retries)

	o := g.generate(context.Background(), deliverable.UseCases, "input", nil)

	assert.False(t, o.Success)
	assert.Empty(t, o.Content)
	assert.Nil(t, o.Usage)
	assert.Contains(t, o.Error, "final failure")
	assert.Equal(t, retries+1, client.calls())
	assert.Len(t, sleeper.Waits(), retries)
	assert.NotEmpty(t, o.Prompt, "prompt is kept for diagnostics")
}

func TestGenerate_RateLimitIsRetried(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(n int, _ lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		if n == 0 {
			return nil, &lmstudio.Error{Kind: lmstudio.KindRateLimit, StatusCode: 429, Message: "slow down"}
		}
		return textResponse("ok", 1, 1), nil
	}
	g, sleeper, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.Personas, "input", nil)
	assert.True(t, o.Success)
	assert.Equal(t, []time.Duration{time.Second}, sleeper.Waits())
}

func TestGenerate_NoRetryOnAuthError(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return nil, authError()
	}
	g, sleeper, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.Personas, "input", nil)

	assert.False(t, o.Success)
	assert.Equal(t, 1, client.calls())
	assert.Empty(t, sleeper.Waits())
	assert.Contains(t, o.Error, "invalid api key")
}

func TestGenerate_NoRetryOnClientError(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return nil, &lmstudio.Error{Kind: lmstudio.KindClient, StatusCode: 400, Message: "bad request"}
	}
	g, _, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.Personas, "input", nil)
	assert.False(t, o.Success)
	assert.Equal(t, 1, client.calls())
}

func TestGenerate_UnclassifiedErrorIsFatal(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return nil, errors.New("something odd")
	}
	g, _, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.Personas, "input", nil)
	assert.False(t, o.Success)
	assert.Equal(t, "something odd", o.Error)
	assert.Equal(t, 1, client.calls())
}

func TestGenerate_EmptyResponseRetried(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(n int, _ lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		if n == 0 {
			return textResponse("   \n", 1, 0), nil
		}
		return textResponse("content", 1, 1), nil
	}
	g, _, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.ToolOutline, "input", nil)
	assert.True(t, o.Success)
	assert.Equal(t, 2, client.calls())
}

func TestGenerate_EmptyResponseNeverSucceeds(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return &lmstudio.CompletionResponse{Choices: []lmstudio.Choice{{Text: ""}}}, nil
	}
	g, _, _ := newTestGenerator(client, 1)

	o := g.generate(context.Background(), deliverable.ToolOutline, "input", nil)
	assert.False(t, o.Success)
	assert.Equal(t, ErrEmptyResponse.Error(), o.Error)
	assert.Equal(t, 2, client.calls())
}

func TestGenerate_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return nil, serverError("down")
	}
	g, sleeper, _ := newTestGenerator(client, 0)

	o := g.generate(context.Background(), deliverable.ToolOutline, "input", nil)
	assert.False(t, o.Success)
	assert.Equal(t, 1, client.calls())
	assert.Empty(t, sleeper.Waits())
}

func TestGenerate_ElapsedIncludesBackoff(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(n int, _ lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		if n < 2 {
			return nil, serverError("busy")
		}
		return textResponse("ok", 1, 1), nil
	}
	g, _, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.Personas, "input", nil)
	require.True(t, o.Success)
	assert.Equal(t, 3*time.Second, o.Elapsed)
}

func TestGenerate_CanceledMidCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		cancel()
		return nil, serverError("busy")
	}
	g, _, _ := newTestGenerator(client, 3)

	o := g.generate(ctx, deliverable.Personas, "input", nil)
	assert.False(t, o.Success)
	assert.Contains(t, o.Error, context.Canceled.Error())
	assert.Equal(t, 1, client.calls())
}

func TestGenerate_CanceledDuringBackoff(t *testing.T) {
	client := newFakeClient("m")
	client.complete = func(int, lmstudio.CompletionRequest) (*lmstudio.CompletionResponse, error) {
		return nil, serverError("busy")
	}
	g, _, _ := newTestGenerator(client, 3)
	g.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	o := g.generate(context.Background(), deliverable.Personas, "input", nil)
	assert.False(t, o.Success)
	assert.Contains(t, o.Error, context.Canceled.Error())
	assert.Contains(t, o.Error, "busy")
	assert.Equal(t, 1, client.calls())
}

func TestGenerate_PromptBuildFailure(t *testing.T) {
	client := newFakeClient("m")
	g, _, _ := newTestGenerator(client, 3)

	o := g.generate(context.Background(), deliverable.Personas, "input", map[string]any{"bad": func() {}})
	assert.False(t, o.Success)
	assert.Empty(t, o.Prompt, "prompt was never built")
	assert.NotEmpty(t, o.Error)
	assert.Equal(t, 0, client.calls())
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 8*time.Second, backoff(3))
	assert.Equal(t, 256*time.Second, backoff(8))
}

func TestBackoff_CappedForLargeAttempts(t *testing.T) {
	for _, attempt := range []int{9, 34, 63, 64, 1000} {
		assert.Equal(t, maxBackoff, backoff(attempt), "attempt %d", attempt)
	}
	prev := time.Duration(0)
	for attempt := range 70 {
		d := backoff(attempt)
		assert.Positive(t, d)
		assert.GreaterOrEqual(t, d, prev, "backoff must not shrink at attempt %d", attempt)
		prev = d
	}
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
