// Package history persists a summary of every orchestration run so that
// past runs can be listed and inspected from the CLI and MCP tools.
package history

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

var (
	// ErrNotFound is returned by GetRun for an unknown run ID.
	ErrNotFound = errors.New("history: run not found")

	// ErrDuplicateRun is returned when a run ID is recorded twice.
	ErrDuplicateRun = errors.New("history: run already recorded")
)

// Store is the run history backend.
// Implementations: KuzuStore (cgo, persistent), MemStore (in-process).
type Store interface {
	io.Closer

	// InitSchema prepares the backend. It is safe to call more than once.
	InitSchema(ctx context.Context) error

	RecordRun(ctx context.Context, run RunRecord) error

	// ListRuns returns runs newest first. A limit <= 0 returns all runs.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	GetRun(ctx context.Context, id string) (*RunRecord, error)
}

// RunRecord summarizes one run.
type RunRecord struct {
	ID           string              `json:"id"`
	StartedAt    time.Time           `json:"started_at"`
	Model        string              `json:"model,omitempty"`
	Mode         string              `json:"completion_mode"`
	Elapsed      time.Duration       `json:"elapsed"`
	TotalTokens  int                 `json:"total_tokens"`
	SuccessCount int                 `json:"success_count"`
	ErrorCount   int                 `json:"error_count"`
	InitError    string              `json:"init_error,omitempty"`
	Deliverables []DeliverableRecord `json:"deliverables"`
}

// DeliverableRecord summarizes one outcome within a run. Content is not
// stored.
type DeliverableRecord struct {
	Kind     string        `json:"kind"`
	Position int           `json:"position"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Tokens   int           `json:"tokens"`
	Elapsed  time.Duration `json:"elapsed"`
}

// FromResult builds a RunRecord from a finished run.
func FromResult(res *orchestrator.Result) RunRecord {
	rec := RunRecord{
		ID:           res.RunID,
		StartedAt:    res.StartedAt.UTC(),
		Model:        res.Model,
		Mode:         string(res.Config.Mode),
		Elapsed:      res.Elapsed,
		TotalTokens:  res.TotalTokens,
		SuccessCount: res.SuccessCount,
		ErrorCount:   res.ErrorCount,
		InitError:    res.InitError,
		Deliverables: make([]DeliverableRecord, 0, len(res.Outcomes)),
	}
	for i, o := range res.Outcomes {
		d := DeliverableRecord{
			Kind:     o.Kind.String(),
			Position: i,
			Success:  o.Success,
			Error:    o.Error,
			Attempts: o.Attempts,
			Elapsed:  o.Elapsed,
		}
		if o.Usage != nil {
			d.Tokens = o.Usage.TotalTokens
		}
		rec.Deliverables = append(rec.Deliverables, d)
	}
	return rec
}

// Open returns a MemStore for an empty path and a file-backed store
// otherwise. The schema is initialized before returning.
func Open(ctx context.Context, path string) (Store, error) {
	var (
		s   Store
		err error
	)
	if path == "" {
		s = NewMemStore()
	} else if s, err = OpenFileStore(path); err != nil {
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
