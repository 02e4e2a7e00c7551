// Package metrics exposes orchestration activity as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/lmstudio"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

// Compile-time interface check.
var _ orchestrator.Metrics = (*Recorder)(nil)

const namespace = "aiproto"

// Recorder implements orchestrator.Metrics with Prometheus collectors.
type Recorder struct {
	attempts     *prometheus.CounterVec
	deliverables *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	runs         *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_attempts_total",
			Help:      "Completion requests sent to the backend, by deliverable and result.",
		}, []string{"deliverable", "result"}),
		deliverables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliverables_total",
			Help:      "Finished deliverables, by deliverable and status.",
		}, []string{"deliverable", "status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the backend for successful deliverables.",
		}, []string{"deliverable"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deliverable_duration_seconds",
			Help:      "Wall-clock time to generate one deliverable, including retries.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}, []string{"deliverable"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Orchestration runs, by status (ok, partial, failed, init_failed).",
		}, []string{"status"}),
	}

	var err error
	if r.attempts, err = register(reg, r.attempts); err != nil {
		return nil, err
	}
	if r.deliverables, err = register(reg, r.deliverables); err != nil {
		return nil, err
	}
	if r.tokens, err = register(reg, r.tokens); err != nil {
		return nil, err
	}
	if r.duration, err = register(reg, r.duration); err != nil {
		return nil, err
	}
	if r.runs, err = register(reg, r.runs); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, fmt.Errorf("metrics: register: %w", err)
	}
	return c, nil
}

// ObserveAttempt counts one completion attempt. Failed attempts are labeled
// with the backend error kind.
func (r *Recorder) ObserveAttempt(kind deliverable.Kind, err error) {
	result := "ok"
	switch {
	case errors.Is(err, orchestrator.ErrEmptyResponse):
		result = "empty_response"
	case err != nil:
		result = string(lmstudio.KindOf(err))
	}
	r.attempts.WithLabelValues(kind.String(), result).Inc()
}

// ObserveOutcome records a finished deliverable.
func (r *Recorder) ObserveOutcome(o orchestrator.Outcome) {
	status := "failed"
	if o.Success {
		status = "success"
	}
	k := o.Kind.String()
	r.deliverables.WithLabelValues(k, status).Inc()
	r.duration.WithLabelValues(k).Observe(o.Elapsed.Seconds())
	if o.Usage != nil {
		r.tokens.WithLabelValues(k).Add(float64(o.Usage.TotalTokens))
	}
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(res *orchestrator.Result) {
	r.runs.WithLabelValues(RunStatus(res)).Inc()
}

// RunStatus classifies a result for the runs_total label.
func RunStatus(res *orchestrator.Result) string {
	switch {
	case res.InitError != "":
		return "init_failed"
	case res.ErrorCount == 0:
		return "ok"
	case res.SuccessCount == 0:
		return "failed"
	default:
		return "partial"
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
