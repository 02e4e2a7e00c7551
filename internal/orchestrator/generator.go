package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/lmstudio"
	"github.com/dusk-indust/aiproto/internal/prompt"
)

// ErrEmptyResponse marks a completion that succeeded at the transport level
// but carried no text.
var ErrEmptyResponse = errors.New("empty response from model")

type attemptStatus int

const (
	attemptOK attemptStatus = iota
	attemptRetryable
	attemptFatal
)

type attemptResult struct {
	status attemptStatus
	text   string
	usage  *TokenUsage
	err    error
}

// generator produces one Outcome per deliverable for a fixed model.
type generator struct {
	client  lmstudio.Client
	cfg     Config
	model   string
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	logger  *slog.Logger
	metrics Metrics
}

// maxBackoff caps the wait between attempts.
const maxBackoff = 5 * time.Minute

// backoff is the wait after the given zero-based failed attempt: 2^attempt
// seconds, capped at maxBackoff.
func backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 9 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}

// generate builds the prompt and runs the retry loop. It never returns an
// error; failures are reported in the Outcome.
func (g *generator) generate(ctx context.Context, kind deliverable.Kind, input string, extra map[string]any) Outcome {
	start := g.now()
	out := Outcome{Kind: kind}

	fail := func(err error) Outcome {
		out.Success = false
		out.Error = err.Error()
		out.Elapsed = g.now().Sub(start)
		g.logger.Error("deliverable failed",
			"deliverable", kind.String(),
			"attempts", out.Attempts,
			"error", err)
		return out
	}

	text, err := prompt.Build(kind, input, extra)
	if err != nil {
		return fail(err)
	}
	out.Prompt = text

	req := lmstudio.CompletionRequest{
		Model:       g.model,
		Prompt:      text,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		TopP:        g.cfg.TopP,
	}

	for attempt := 0; ; attempt++ {
		out.Attempts = attempt + 1
		res := g.attempt(ctx, req)
		g.metrics.ObserveAttempt(kind, res.err)

		switch res.status {
		case attemptOK:
			out.Success = true
			out.Content = res.text
			out.Usage = res.usage
			out.Elapsed = g.now().Sub(start)
			return out

		case attemptFatal:
			return fail(res.err)

		case attemptRetryable:
			if attempt >= g.cfg.MaxRetriesPerDeliverable {
				return fail(res.err)
			}
			wait := backoff(attempt)
			g.logger.Warn("attempt failed, retrying",
				"deliverable", kind.String(),
				"attempt", attempt+1,
				"backoff", wait,
				"error", res.err)
			if err := g.sleep(ctx, wait); err != nil {
				return fail(fmt.Errorf("%w (after: %v)", err, res.err))
			}
		}
	}
}

// attempt issues one completion and classifies the result.
func (g *generator) attempt(ctx context.Context, req lmstudio.CompletionRequest) attemptResult {
	if err := ctx.Err(); err != nil {
		return attemptResult{status: attemptFatal, err: err}
	}

	resp, err := g.client.CreateCompletion(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attemptResult{status: attemptFatal, err: fmt.Errorf("%w (last error: %v)", ctxErr, err)}
		}
		if lmstudio.IsRetryable(err) {
			return attemptResult{status: attemptRetryable, err: err}
		}
		return attemptResult{status: attemptFatal, err: err}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return attemptResult{status: attemptRetryable, err: ErrEmptyResponse}
	}

	res := attemptResult{status: attemptOK, text: text}
	if resp.Usage != nil {
		res.usage = &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return res
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
