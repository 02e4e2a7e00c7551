// Package prompt builds the completion prompt for each deliverable.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/aiproto/internal/deliverable"
)

// preamble sets the role and output style shared by every deliverable.
const preamble = `
You are an expert business analyst and technical writer. Produce
professional documentation from the requirements below.

The content must be:
- Clearly structured with headings and lists
- Suitable for a business audience
- Complete but concise
- Practical and actionable

Respond in clean Markdown only.
`

var instructions = map[deliverable.Kind]string{
	deliverable.ProblemStatement: `
Write a problem statement covering:
- The business problem or opportunity
- The current state and its shortcomings
- The desired future state
- Impact on the organization
- Measurable success criteria
- Key stakeholders
`,
	deliverable.Personas: `
Describe 3-5 distinct user personas. For each persona cover:
- Role, background and demographics
- Goals and motivations
- Pain points and challenges
- Technical proficiency and preferred tools
- Behaviour patterns
- Needs and expectations
`,
	deliverable.UseCases: `
Develop the use cases, covering:
- Primary and secondary actors
- Preconditions and postconditions
- Main success scenario
- Alternative and exception flows
- Business rules
Include both summary-level and detailed use cases.
`,
	deliverable.ToolOutline: `
Outline the proposed tool, covering:
- Purpose and overview
- Key features and capabilities
- Technical architecture
- User interface concept
- Integration points
- Implementation considerations
`,
	deliverable.ImplementationInstructions: `
Write implementation instructions, covering:
- A step-by-step implementation plan
- Technical requirements
- Dependencies and prerequisites
- Resource allocation
- Timeline and milestones
- Risks and mitigations
- Quality assurance
`,
	deliverable.PresentationPrompt: `
Write a prompt for Microsoft Copilot 365 to produce an executive
presentation, covering:
- Executive summary
- Business benefits
- Implementation roadmap
- ROI projections
- Change management
- Next steps and recommendations
`,
	deliverable.EffectivenessAssessment: `
Define an effectiveness assessment framework, covering:
- Key performance indicators
- Measurement methods
- Success metrics and evaluation criteria
- Reporting cadence and mechanisms
- Continuous improvement recommendations
`,
}

// Instructions returns the fixed instruction block for kind.
func Instructions(kind deliverable.Kind) (string, error) {
	text, ok := instructions[kind]
	if !ok {
		return "", fmt.Errorf("prompt: %w: %d", deliverable.ErrUnknownKind, int(kind))
	}
	return text, nil
}

// Build assembles the prompt for kind. The output depends only on its
// arguments; extra is serialized as indented JSON with sorted keys.
func Build(kind deliverable.Kind, userInput string, extra map[string]any) (string, error) {
	block, err := Instructions(kind)
	if err != nil {
		return "", err
	}

	parts := []string{
		preamble,
		"\n\n## Task: Generate " + kind.Title(),
		block,
		"\n\n## User Requirements:",
		userInput,
	}

	if len(extra) > 0 {
		data, err := json.MarshalIndent(extra, "", "  ")
		if err != nil {
			return "", fmt.Errorf("prompt: encode context for %s: %w", kind, err)
		}
		parts = append(parts, "\n\n## Additional Context:", string(data))
	}

	parts = append(parts, "\n\n## Generated Content:")
	return strings.Join(parts, "\n"), nil
}
