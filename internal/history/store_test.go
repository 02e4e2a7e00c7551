package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRun(id string, started time.Time) RunRecord {
	return RunRecord{
		ID:           id,
		StartedAt:    started,
		Model:        "qwen2.5-7b",
		Mode:         "sequential",
		Elapsed:      4 * time.Second,
		TotalTokens:  300,
		SuccessCount: 1,
		ErrorCount:   1,
		Deliverables: []DeliverableRecord{
			{Kind: "problem_statement", Position: 0, Success: true, Attempts: 1, Tokens: 300, Elapsed: 3 * time.Second},
			{Kind: "personas", Position: 1, Error: "server_error: boom", Attempts: 4, Elapsed: time.Second},
		},
	}
}

// storeContract runs the behavior every Store must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.GetRun(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("RecordAndGet", func(t *testing.T) {
		want := sampleRun("run-a", t0)
		require.NoError(t, s.RecordRun(ctx, want))

		got, err := s.GetRun(ctx, "run-a")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.True(t, want.StartedAt.Equal(got.StartedAt))
		assert.Equal(t, want.Model, got.Model)
		assert.Equal(t, want.Elapsed, got.Elapsed)
		assert.Equal(t, want.Deliverables, got.Deliverables)
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := s.RecordRun(ctx, sampleRun("run-a", t0))
		assert.True(t, errors.Is(err, ErrDuplicateRun))
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		require.NoError(t, s.RecordRun(ctx, sampleRun("run-b", t0.Add(time.Hour))))
		require.NoError(t, s.RecordRun(ctx, sampleRun("run-c", t0.Add(-time.Hour))))

		runs, err := s.ListRuns(ctx, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(runs))
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"run-b", "run-a", "run-c"}, ids)

		runs, err = s.ListRuns(ctx, 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-b", runs[0].ID)
		assert.Len(t, runs[0].Deliverables, 2)
	})
}

func TestMemStore(t *testing.T) {
	storeContract(t, NewMemStore())
}

func TestMemStore_CopiesDeliverables(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	run := sampleRun("r", t0)
	require.NoError(t, s.RecordRun(ctx, run))

	run.Deliverables[0].Kind = "mutated"
	got, err := s.GetRun(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "problem_statement", got.Deliverables[0].Kind)
}

func TestOpen_EmptyPathIsMemory(t *testing.T) {
	s, err := Open(context.Background(), "")
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &MemStore{}, s)
}

func TestFromResult(t *testing.T) {
	cfg := orchestrator.DefaultConfig()
	res := &orchestrator.Result{
		RunID:        "abc",
		StartedAt:    t0,
		Model:        "m",
		Config:       cfg,
		Elapsed:      2 * time.Second,
		TotalTokens:  50,
		SuccessCount: 1,
		ErrorCount:   1,
		Outcomes: []orchestrator.Outcome{
			{Kind: deliverable.UseCases, Success: true, Attempts: 2, Usage: &orchestrator.TokenUsage{TotalTokens: 50}},
			{Kind: deliverable.ToolOutline, Error: "timeout", Attempts: 4},
		},
	}

	rec := FromResult(res)
	assert.Equal(t, "abc", rec.ID)
	assert.Equal(t, "sequential", rec.Mode)
	assert.Equal(t, 50, rec.TotalTokens)
	require.Len(t, rec.Deliverables, 2)
	assert.Equal(t, DeliverableRecord{Kind: "use_cases", Position: 0, Success: true, Attempts: 2, Tokens: 50}, rec.Deliverables[0])
	assert.Equal(t, DeliverableRecord{Kind: "tool_outline", Position: 1, Error: "timeout", Attempts: 4}, rec.Deliverables[1])
}
