package orchestrator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dusk-indust/aiproto/internal/deliverable"
)

// CoherenceIssue is a contradiction between two generated deliverables.
type CoherenceIssue struct {
	A           deliverable.Kind
	B           deliverable.Kind
	Description string
}

// codeBlockRe matches fenced code blocks (``` ... ```).
var codeBlockRe = regexp.MustCompile("(?s)```.*?```")

// versionRe matches a product name followed by a version, e.g. "React 18.2",
// "Python 3.12" or "node v20.x".
var versionRe = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9_.-]*)\s+v?(\d+\.\d+(?:\.\d+)?(?:\.x)?)\b`)

// proseWords precede numbers in ordinary document structure ("Phase 2.0",
// "Section 4.3", "Q3 2.5") and are never technologies.
var proseWords = map[string]bool{
	"phase": true, "section": true, "step": true, "stage": true,
	"chapter": true, "figure": true, "table": true, "sprint": true,
	"milestone": true, "release": true, "version": true, "q": true,
	"appendix": true, "part": true, "item": true, "iteration": true,
}

// CheckCoherence scans successful outcomes for technologies mentioned with
// different versions in different deliverables. Fenced code is ignored.
// Issues are ordered by technology name.
func CheckCoherence(outcomes []Outcome) []CoherenceIssue {
	// name -> version -> kinds mentioning it, in outcome order.
	mentions := make(map[string]map[string][]deliverable.Kind)
	firstVersion := make(map[string][]string)

	for _, o := range outcomes {
		if !o.Success {
			continue
		}
		cleaned := codeBlockRe.ReplaceAllString(o.Content, "")
		seen := make(map[string]bool)
		for _, m := range versionRe.FindAllStringSubmatch(cleaned, -1) {
			name := strings.ToLower(m[1])
			if proseWords[name] {
				continue
			}
			version := m[2]
			key := name + "@" + version
			if seen[key] {
				continue
			}
			seen[key] = true

			if mentions[name] == nil {
				mentions[name] = make(map[string][]deliverable.Kind)
			}
			if _, ok := mentions[name][version]; !ok {
				firstVersion[name] = append(firstVersion[name], version)
			}
			mentions[name][version] = append(mentions[name][version], o.Kind)
		}
	}

	names := make([]string, 0, len(mentions))
	for name, versions := range mentions {
		if len(versions) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var issues []CoherenceIssue
	for _, name := range names {
		versions := firstVersion[name]
		for i := 0; i < len(versions); i++ {
			for j := i + 1; j < len(versions); j++ {
				ki := mentions[name][versions[i]]
				kj := mentions[name][versions[j]]
				if sameKinds(ki, kj) {
					continue
				}
				issues = append(issues, CoherenceIssue{
					A: ki[0],
					B: kj[0],
					Description: fmt.Sprintf("%q appears as %s (in %s) and %s (in %s)",
						name, versions[i], joinKinds(ki), versions[j], joinKinds(kj)),
				})
			}
		}
	}
	return issues
}

// sameKinds reports whether both version groups come from one deliverable
// only, which is a single document discussing an upgrade rather than a
// contradiction.
func sameKinds(a, b []deliverable.Kind) bool {
	return len(a) == 1 && len(b) == 1 && a[0] == b[0]
}

func joinKinds(kinds []deliverable.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
