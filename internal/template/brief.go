package template

import (
	"bufio"
	"regexp"
	"sort"
	"strings"
)

// Brief is the structured form of a free-text project description.
// Recognized "Key: value" lines populate the named fields; any other keyed
// line lands in Extra, and unkeyed lines form the Summary.
type Brief struct {
	ProjectName  string            `json:"project_name,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	Problem      string            `json:"problem,omitempty"`
	Industry     string            `json:"industry,omitempty"`
	Audience     string            `json:"audience,omitempty"`
	Timeline     string            `json:"timeline,omitempty"`
	Goals        []string          `json:"goals,omitempty"`
	Constraints  []string          `json:"constraints,omitempty"`
	Stakeholders []string          `json:"stakeholders,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

type briefField int

const (
	fieldProjectName briefField = iota
	fieldProblem
	fieldIndustry
	fieldAudience
	fieldTimeline
	fieldGoals
	fieldConstraints
	fieldStakeholders
)

// fieldAliases maps normalized key names onto Brief fields.
var fieldAliases = map[string]briefField{
	"project":       fieldProjectName,
	"project name":  fieldProjectName,
	"name":          fieldProjectName,
	"title":         fieldProjectName,
	"problem":       fieldProblem,
	"challenge":     fieldProblem,
	"industry":      fieldIndustry,
	"domain":        fieldIndustry,
	"audience":      fieldAudience,
	"users":         fieldAudience,
	"target users":  fieldAudience,
	"timeline":      fieldTimeline,
	"duration":      fieldTimeline,
	"goal":          fieldGoals,
	"goals":         fieldGoals,
	"objectives":    fieldGoals,
	"constraint":    fieldConstraints,
	"constraints":   fieldConstraints,
	"stakeholder":   fieldStakeholders,
	"stakeholders":  fieldStakeholders,
	"sponsors":      fieldStakeholders,
	"project owner": fieldStakeholders,
}

var keyLineRe = regexp.MustCompile(`^\s*(?:[-*]\s*)?([A-Za-z][A-Za-z0-9 _-]{0,40}):\s*(.*)$`)

// ParseBrief extracts a Brief from input.
func ParseBrief(input string) Brief {
	var b Brief
	var summary []string

	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m := keyLineRe.FindStringSubmatch(line)
		if m == nil || strings.TrimSpace(m[2]) == "" {
			summary = append(summary, line)
			continue
		}
		key := normalizeKey(m[1])
		value := strings.TrimSpace(m[2])

		field, ok := fieldAliases[key]
		if !ok {
			if b.Extra == nil {
				b.Extra = make(map[string]string)
			}
			b.Extra[strings.ReplaceAll(key, " ", "_")] = value
			continue
		}
		switch field {
		case fieldProjectName:
			b.ProjectName = value
		case fieldProblem:
			b.Problem = value
		case fieldIndustry:
			b.Industry = value
		case fieldAudience:
			b.Audience = value
		case fieldTimeline:
			b.Timeline = value
		case fieldGoals:
			b.Goals = append(b.Goals, splitList(value)...)
		case fieldConstraints:
			b.Constraints = append(b.Constraints, splitList(value)...)
		case fieldStakeholders:
			b.Stakeholders = append(b.Stakeholders, splitList(value)...)
		}
	}
	b.Summary = strings.Join(summary, " ")
	return b
}

// ExtraKeys returns the keys of Extra in sorted order.
func (b Brief) ExtraKeys() []string {
	keys := make([]string, 0, len(b.Extra))
	for k := range b.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer("_", " ", "-", " ").Replace(k)
	return strings.Join(strings.Fields(k), " ")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
