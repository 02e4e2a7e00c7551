package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// FailedDocument is the merged document when no deliverable succeeded.
const FailedDocument = "# Document Generation Failed\n\nNo deliverables were successfully generated."

// MergeOptions controls the merged report layout.
type MergeOptions struct {
	IncludeTOC  bool
	Model       string
	GeneratedAt time.Time
}

// Merge concatenates the successful outcomes, in order, into one markdown
// report with an optional table of contents and a metadata footer. Failed
// outcomes contribute only to the failure count.
func Merge(outcomes []Outcome, opts MergeOptions) string {
	var ok []Outcome
	for _, o := range outcomes {
		if o.Success {
			ok = append(ok, o)
		}
	}
	if len(ok) == 0 {
		return FailedDocument
	}

	parts := []string{"# Generated Documentation\n"}

	if opts.IncludeTOC {
		parts = append(parts, "## Table of Contents\n")
		for i, o := range ok {
			parts = append(parts, fmt.Sprintf("%d. [%s](#%s)", i+1, o.Kind.Title(), o.Kind.Anchor()))
		}
		parts = append(parts, "\n")
	}

	for _, o := range ok {
		parts = append(parts, fmt.Sprintf("## %s\n", o.Kind.Title()), o.Content, "\n---\n")
	}

	model := opts.Model
	if model == "" {
		model = "unknown"
	}
	parts = append(parts,
		"## Generation Metadata\n",
		fmt.Sprintf("- **Generated at**: %s\n", opts.GeneratedAt.Format(time.RFC3339)),
		fmt.Sprintf("- **Successful deliverables**: %d\n", len(ok)),
		fmt.Sprintf("- **Failed deliverables**: %d\n", len(outcomes)-len(ok)),
		fmt.Sprintf("- **Model used**: %s\n", model),
	)

	return strings.Join(parts, "\n")
}
