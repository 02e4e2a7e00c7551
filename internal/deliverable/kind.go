// Package deliverable defines the fixed set of documentation artifacts the
// engine can generate.
package deliverable

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a deliverable name does not match any Kind.
var ErrUnknownKind = errors.New("deliverable: unknown kind")

// Kind identifies one deliverable in the documentation chain.
type Kind int

const (
	ProblemStatement           Kind = 0
	Personas                   Kind = 1
	UseCases                   Kind = 2
	ToolOutline                Kind = 3
	ImplementationInstructions Kind = 4
	PresentationPrompt         Kind = 5
	EffectivenessAssessment    Kind = 6
)

var slugs = [...]string{
	"problem_statement",
	"personas",
	"use_cases",
	"tool_outline",
	"implementation_instructions",
	"copilot365_presentation_prompt",
	"effectiveness_assessment",
}

var titles = [...]string{
	"Problem Statement",
	"Personas",
	"Use Cases",
	"Tool Outline",
	"Implementation Instructions",
	"Copilot365 Presentation Prompt",
	"Effectiveness Assessment",
}

var descriptions = [...]string{
	"Business problem, current and desired state, impact and success criteria",
	"Target user personas with goals, pain points and needs",
	"Actors, scenarios, alternative flows and business rules",
	"Tool purpose, features, architecture and integration points",
	"Step-by-step plan, requirements, timeline and risks",
	"Executive presentation prompt for Microsoft Copilot 365",
	"KPIs, measurement methods and evaluation criteria",
}

// String returns the snake_case identifier used in files, flags and config.
func (k Kind) String() string {
	if k.Valid() {
		return slugs[k]
	}
	return "unknown"
}

// Title returns the human-readable heading for the deliverable.
func (k Kind) Title() string {
	if k.Valid() {
		return titles[k]
	}
	return "Unknown"
}

// Description returns a one-line summary of what the deliverable covers.
func (k Kind) Description() string {
	if k.Valid() {
		return descriptions[k]
	}
	return ""
}

// Anchor returns the markdown heading anchor for Title.
func (k Kind) Anchor() string {
	return strings.ReplaceAll(strings.ToLower(k.Title()), " ", "-")
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= ProblemStatement && int(k) < len(slugs)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// All returns every kind in chain order.
func All() []Kind {
	kinds := make([]Kind, len(slugs))
	for i := range slugs {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Parse maps a slug to its Kind. Matching ignores case and accepts dashes
// in place of underscores.
func Parse(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, slug := range slugs {
		if slug == norm {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ParseList parses each name in order. The single name "all" expands to
// All(). Comma-separated entries are split.
func ParseList(names []string) ([]Kind, error) {
	var kinds []Kind
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.EqualFold(part, "all") {
				kinds = append(kinds, All()...)
				continue
			}
			k, err := Parse(part)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}
