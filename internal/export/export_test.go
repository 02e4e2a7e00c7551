package export

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/history"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

func sampleResult() *orchestrator.Result {
	return &orchestrator.Result{
		RunID:        "run-1",
		StartedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Model:        "qwen",
		Elapsed:      1500 * time.Millisecond,
		TotalTokens:  12,
		SuccessCount: 1,
		ErrorCount:   1,
		Config:       orchestrator.DefaultConfig(),
		Outcomes: []orchestrator.Outcome{
			{Kind: deliverable.ProblemStatement, Success: true, Content: "# PS", Attempts: 1,
				Elapsed: time.Second, Usage: &orchestrator.TokenUsage{TotalTokens: 12}},
			{Kind: deliverable.Personas, Error: "server_error: boom", Attempts: 4},
		},
		MergedDocument: "merged",
	}
}

func TestRun(t *testing.T) {
	exp := Run(sampleResult())

	assert.Equal(t, "run-1", exp.RunID)
	assert.Equal(t, "2026-03-01T12:00:00Z", exp.StartedAt)
	assert.Equal(t, 1.5, exp.TotalSeconds)
	require.Len(t, exp.Deliverables, 2)
	assert.Equal(t, "problem_statement", exp.Deliverables[0].Type)
	assert.Equal(t, "Problem Statement", exp.Deliverables[0].Title)
	assert.Equal(t, 12, exp.Deliverables[0].Usage.TotalTokens)
	assert.False(t, exp.Deliverables[1].Success)
	assert.Equal(t, 4, exp.Deliverables[1].Attempts)
}

func TestJSON(t *testing.T) {
	data, err := JSON(sampleResult())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, "merged", decoded["mergedDocument"])
	cfg := decoded["config"].(map[string]any)
	assert.NotContains(t, cfg, "APIKey")
	assert.Contains(t, string(data), "\n  \"runId\"")
}

func TestMermaid(t *testing.T) {
	got := Mermaid(sampleResult())

	assert.Contains(t, got, "graph LR\n")
	assert.Contains(t, got, `D0["Problem Statement ✓"]`)
	assert.Contains(t, got, `D1["Personas ✗"]`)
	assert.Contains(t, got, "D0 --> D1")
	assert.Contains(t, got, "class D0 ok")
	assert.Contains(t, got, "class D1 failed")
}

func TestMermaid_SingleNodeHasNoEdges(t *testing.T) {
	res := &orchestrator.Result{Outcomes: []orchestrator.Outcome{{Kind: deliverable.UseCases, Success: true}}}
	assert.NotContains(t, Mermaid(res), "-->")
}

func TestMermaidRecord(t *testing.T) {
	rec := history.FromResult(sampleResult())
	rec.Deliverables = append(rec.Deliverables, history.DeliverableRecord{Kind: `legacy "kind"`, Position: 2})

	got := MermaidRecord(&rec)
	assert.Contains(t, got, `D0["Problem Statement ✓"]`)
	assert.Contains(t, got, `D2["legacy #quot;kind#quot; ✗"]`)
	assert.Contains(t, got, "D1 --> D2")
}
