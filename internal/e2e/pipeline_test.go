//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/export"
	"github.com/dusk-indust/aiproto/internal/history"
	"github.com/dusk-indust/aiproto/internal/lmstudio"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
	"github.com/dusk-indust/aiproto/internal/output"
	"github.com/dusk-indust/aiproto/internal/status"
)

var taskRe = regexp.MustCompile(`## Task: Generate (.+)`)

// fakeBackend answers each completion with a short section named after the
// deliverable in the prompt, and records every prompt it receives.
type fakeBackend struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"e2e-model","object":"model"}]}`))
	})
	mux.HandleFunc("POST /v1/completions", func(w http.ResponseWriter, r *http.Request) {
		var req lmstudio.CompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.prompts = append(f.prompts, req.Prompt)
		f.mu.Unlock()

		title := "Unknown"
		if m := taskRe.FindStringSubmatch(req.Prompt); m != nil {
			title = strings.TrimSpace(m[1])
		}
		_ = json.NewEncoder(w).Encode(lmstudio.CompletionResponse{
			ID:      "cmpl-e2e",
			Model:   req.Model,
			Choices: []lmstudio.Choice{{Text: fmt.Sprintf("Content for %s.", title), FinishReason: "stop"}},
			Usage:   &lmstudio.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		})
	})
	return mux
}

func (f *fakeBackend) prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i]
}

// fixedClock is the timestamp every e2e run reports.
var fixedClock = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, baseURL string, cfg orchestrator.Config) *orchestrator.Engine {
	t.Helper()
	cfg.BaseURL = baseURL
	e := orchestrator.NewEngine(cfg, lmstudio.NewHTTPClient(baseURL),
		orchestrator.WithClock(func() time.Time { return fixedClock }),
		orchestrator.WithIDGenerator(func() string { return "run-e2e" }),
		orchestrator.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	t.Cleanup(func() { e.Close() })
	return e
}

func readBrief(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "fixtures", "bike_share.txt"))
	require.NoError(t, err)
	return string(data)
}

// TestPipeline_E2E_AllDeliverables runs every deliverable against a fake
// backend and checks the merged document, history record, export and the
// status of the output directory.
func TestPipeline_E2E_AllDeliverables(t *testing.T) {
	backend := &fakeBackend{}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	cfg := orchestrator.DefaultConfig()
	cfg.IncludeTableOfContents = true
	cfg.ChainOutputs = true
	engine := newEngine(t, ts.URL+"/v1", cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := engine.Orchestrate(ctx, readBrief(t), deliverable.All(), nil)
	require.NoError(t, err)
	require.Equal(t, len(deliverable.All()), res.SuccessCount)
	assert.Zero(t, res.ErrorCount)
	assert.Equal(t, "e2e-model", res.Model)
	assert.Equal(t, 120*len(deliverable.All()), res.TotalTokens)

	// Later prompts carry the earlier deliverables.
	last := backend.prompt(len(deliverable.All()) - 1)
	assert.Contains(t, last, "prior_deliverables")
	assert.Contains(t, last, "Content for Problem Statement.")

	doc := res.MergedDocument
	assert.True(t, strings.HasPrefix(doc, "# Generated Documentation"))
	assert.Contains(t, doc, "## Table of Contents")
	prev := -1
	for _, k := range deliverable.All() {
		idx := strings.Index(doc, "## "+k.Title()+"\n")
		require.GreaterOrEqual(t, idx, 0, "missing section %s", k)
		assert.Greater(t, idx, prev, "section %s out of order", k)
		prev = idx
	}
	assert.Contains(t, doc, "- **Model used**: e2e-model")

	dir := t.TempDir()
	written, err := output.Writer{Dir: dir, Format: output.FormatMarkdown, HTML: true}.Save(res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "merged_deliverables.md"), written.Main)
	assert.FileExists(t, written.HTML)

	st := status.Scan(dir)
	assert.Equal(t, filepath.Join(dir, "merged_deliverables.md"), st.MergedPath)
	assert.False(t, st.AllComplete, "a merged run writes no per-deliverable files")

	store := history.NewMemStore()
	require.NoError(t, store.RecordRun(ctx, history.FromResult(res)))
	rec, err := store.GetRun(ctx, "run-e2e")
	require.NoError(t, err)
	assert.Len(t, rec.Deliverables, len(deliverable.All()))
	assert.Equal(t, export.Mermaid(res), export.MermaidRecord(rec))

	data, err := export.JSON(res)
	require.NoError(t, err)
	var exported export.RunExport
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, "run-e2e", exported.RunID)
	assert.Len(t, exported.Deliverables, len(deliverable.All()))
}

// TestPipeline_E2E_SeparateFiles writes one file per deliverable and checks
// that the output directory then reports the chain as complete.
func TestPipeline_E2E_SeparateFiles(t *testing.T) {
	backend := &fakeBackend{}
	ts := httptest.NewServer(backend.handler())
	defer ts.Close()

	cfg := orchestrator.DefaultConfig()
	cfg.MergeIntoSingleDocument = false
	engine := newEngine(t, ts.URL+"/v1", cfg)

	res, err := engine.Orchestrate(context.Background(), readBrief(t), deliverable.All(), map[string]any{"region": "EU"})
	require.NoError(t, err)
	assert.Empty(t, res.MergedDocument)
	assert.NotContains(t, backend.prompt(1), "prior_deliverables")
	assert.Contains(t, backend.prompt(1), `"region": "EU"`)

	dir := t.TempDir()
	written, err := output.Writer{Dir: dir, Format: output.FormatMarkdown}.Save(res)
	require.NoError(t, err)
	assert.Len(t, written.Deliverables, len(deliverable.All()))

	st := status.Scan(dir)
	assert.True(t, st.AllComplete)
	assert.Empty(t, st.MergedPath)
}

// TestPipeline_E2E_BackendDown reports every deliverable as failed without
// returning an error.
func TestPipeline_E2E_BackendDown(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL + "/v1"
	ts.Close()

	engine := newEngine(t, url, orchestrator.DefaultConfig())
	kinds := []deliverable.Kind{deliverable.ProblemStatement, deliverable.Personas}
	res, err := engine.Orchestrate(context.Background(), "idea", kinds, nil)
	require.NoError(t, err)
	assert.Equal(t, len(kinds), res.ErrorCount)
	assert.Zero(t, res.SuccessCount)
	assert.Empty(t, res.Outcomes)
	assert.NotEmpty(t, res.InitError)
}
