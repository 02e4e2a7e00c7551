// Package export renders finished runs as JSON documents and Mermaid
// diagrams.
package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

// RunExport is the top-level JSON export structure.
type RunExport struct {
	RunID          string              `json:"runId"`
	Model          string              `json:"model,omitempty"`
	StartedAt      string              `json:"startedAt"`
	TotalSeconds   float64             `json:"totalSeconds"`
	TotalTokens    int                 `json:"totalTokens"`
	SuccessCount   int                 `json:"successCount"`
	ErrorCount     int                 `json:"errorCount"`
	InitError      string              `json:"initError,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
	Deliverables   []DeliverableExport `json:"deliverables"`
	MergedDocument string              `json:"mergedDocument,omitempty"`
	Config         orchestrator.Config `json:"config"`
}

// DeliverableExport describes one generated deliverable.
type DeliverableExport struct {
	Type     string                   `json:"type"`
	Title    string                   `json:"title"`
	Success  bool                     `json:"success"`
	Error    string                   `json:"error,omitempty"`
	Content  string                   `json:"content,omitempty"`
	Seconds  float64                  `json:"seconds"`
	Attempts int                      `json:"attempts"`
	Usage    *orchestrator.TokenUsage `json:"usage,omitempty"`
}

// Run builds a RunExport from a finished run.
func Run(res *orchestrator.Result) *RunExport {
	out := &RunExport{
		RunID:          res.RunID,
		Model:          res.Model,
		StartedAt:      res.StartedAt.UTC().Format(time.RFC3339),
		TotalSeconds:   res.Elapsed.Seconds(),
		TotalTokens:    res.TotalTokens,
		SuccessCount:   res.SuccessCount,
		ErrorCount:     res.ErrorCount,
		InitError:      res.InitError,
		Warnings:       res.Warnings,
		Deliverables:   make([]DeliverableExport, 0, len(res.Outcomes)),
		MergedDocument: res.MergedDocument,
		Config:         res.Config,
	}
	for _, o := range res.Outcomes {
		out.Deliverables = append(out.Deliverables, DeliverableExport{
			Type:     o.Kind.String(),
			Title:    o.Kind.Title(),
			Success:  o.Success,
			Error:    o.Error,
			Content:  o.Content,
			Seconds:  o.Elapsed.Seconds(),
			Attempts: o.Attempts,
			Usage:    o.Usage,
		})
	}
	return out
}

// JSON encodes the export of res with two-space indentation.
func JSON(res *orchestrator.Result) ([]byte, error) {
	data, err := json.MarshalIndent(Run(res), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encode run: %w", err)
	}
	return data, nil
}
