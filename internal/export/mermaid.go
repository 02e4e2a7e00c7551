package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/history"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

type diagramNode struct {
	label   string
	success bool
}

// Mermaid produces a graph LR diagram of a run: one node per deliverable in
// request order, styled by outcome.
func Mermaid(res *orchestrator.Result) string {
	nodes := make([]diagramNode, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		nodes = append(nodes, diagramNode{label: o.Kind.Title(), success: o.Success})
	}
	return chainDiagram(nodes)
}

// MermaidRecord produces the same diagram from a stored run.
func MermaidRecord(rec *history.RunRecord) string {
	nodes := make([]diagramNode, 0, len(rec.Deliverables))
	for _, d := range rec.Deliverables {
		label := d.Kind
		if k, err := deliverable.Parse(d.Kind); err == nil {
			label = k.Title()
		}
		nodes = append(nodes, diagramNode{label: label, success: d.Success})
	}
	return chainDiagram(nodes)
}

func chainDiagram(nodes []diagramNode) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString("  classDef ok fill:#d4edda,stroke:#28a745\n")
	sb.WriteString("  classDef failed fill:#f8d7da,stroke:#dc3545\n")

	for i, n := range nodes {
		mark := "✓"
		if !n.success {
			mark = "✗"
		}
		sb.WriteString(fmt.Sprintf("  D%d[\"%s %s\"]\n", i, escapeLabel(n.label), mark))
	}
	for i := 1; i < len(nodes); i++ {
		sb.WriteString(fmt.Sprintf("  D%d --> D%d\n", i-1, i))
	}
	for i, n := range nodes {
		class := "ok"
		if !n.success {
			class = "failed"
		}
		sb.WriteString(fmt.Sprintf("  class D%d %s\n", i, class))
	}
	return sb.String()
}

// escapeLabel keeps a label inside Mermaid's quoted node syntax.
func escapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
