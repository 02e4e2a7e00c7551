package deliverable

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_StringAndTitle(t *testing.T) {
	tests := []struct {
		kind   Kind
		slug   string
		title  string
		anchor string
	}{
		{ProblemStatement, "problem_statement", "Problem Statement", "problem-statement"},
		{Personas, "personas", "Personas", "personas"},
		{UseCases, "use_cases", "Use Cases", "use-cases"},
		{ToolOutline, "tool_outline", "Tool Outline", "tool-outline"},
		{ImplementationInstructions, "implementation_instructions", "Implementation Instructions", "implementation-instructions"},
		{PresentationPrompt, "copilot365_presentation_prompt", "Copilot365 Presentation Prompt", "copilot365-presentation-prompt"},
		{EffectivenessAssessment, "effectiveness_assessment", "Effectiveness Assessment", "effectiveness-assessment"},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.slug, tt.kind.String())
			assert.Equal(t, tt.title, tt.kind.Title())
			assert.Equal(t, tt.anchor, tt.kind.Anchor())
			assert.NotEmpty(t, tt.kind.Description())
		})
	}
}

func TestKind_Invalid(t *testing.T) {
	k := Kind(42)
	assert.False(t, k.Valid())
	assert.Equal(t, "unknown", k.String())
	_, err := k.MarshalText()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestAll_ChainOrder(t *testing.T) {
	all := All()
	require.Len(t, all, 7)
	assert.Equal(t, ProblemStatement, all[0])
	assert.Equal(t, EffectivenessAssessment, all[6])
}

func TestParse(t *testing.T) {
	k, err := Parse("Use-Cases")
	require.NoError(t, err)
	assert.Equal(t, UseCases, k)

	_, err = Parse("roadmap")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseList(t *testing.T) {
	kinds, err := ParseList([]string{"personas,problem_statement", " tool_outline "})
	require.NoError(t, err)
	assert.Equal(t, []Kind{Personas, ProblemStatement, ToolOutline}, kinds)

	kinds, err = ParseList([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, All(), kinds)

	_, err = ParseList([]string{"personas", "bogus"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestKind_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Kind{"kind": PresentationPrompt})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"copilot365_presentation_prompt"}`, string(data))

	var decoded struct{ Kind Kind }
	require.NoError(t, json.Unmarshal([]byte(`{"Kind":"personas"}`), &decoded))
	assert.Equal(t, Personas, decoded.Kind)
}
