// Package status reports which deliverables already exist in an output
// directory.
package status

import (
	"os"
	"path/filepath"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/output"
)

// DeliverableInfo describes the on-disk state of a single deliverable.
type DeliverableInfo struct {
	Kind     deliverable.Kind
	Complete bool
	FilePath string // path when complete, empty otherwise
}

// DirStatus holds the status of one output directory.
type DirStatus struct {
	Dir          string
	Deliverables []DeliverableInfo // one per kind, in chain order
	MergedPath   string            // merged document, if present
	Next         deliverable.Kind  // first missing kind; valid only when !AllComplete
	AllComplete  bool
}

// formats are checked in order; the first existing file wins.
var formats = []output.Format{output.FormatMarkdown, output.FormatJSON}

// ScanCompleted returns the kinds that have an output file in dir, in chain
// order.
func ScanCompleted(dir string) []deliverable.Kind {
	var completed []deliverable.Kind
	for _, k := range deliverable.All() {
		if findFile(dir, func(f output.Format) string { return output.DeliverableName(k, f) }) != "" {
			completed = append(completed, k)
		}
	}
	return completed
}

// NextMissing returns the first kind in chain order that is not in
// completed, and false when every kind is complete.
func NextMissing(completed []deliverable.Kind) (deliverable.Kind, bool) {
	done := make(map[deliverable.Kind]bool, len(completed))
	for _, k := range completed {
		done[k] = true
	}
	for _, k := range deliverable.All() {
		if !done[k] {
			return k, true
		}
	}
	return 0, false
}

// Scan returns detailed status for dir. A missing directory reports every
// kind as incomplete.
func Scan(dir string) DirStatus {
	st := DirStatus{Dir: dir}
	for _, k := range deliverable.All() {
		p := findFile(dir, func(f output.Format) string { return output.DeliverableName(k, f) })
		st.Deliverables = append(st.Deliverables, DeliverableInfo{
			Kind:     k,
			Complete: p != "",
			FilePath: p,
		})
	}
	st.MergedPath = findFile(dir, output.MergedName)

	next, ok := NextMissing(ScanCompleted(dir))
	st.Next = next
	st.AllComplete = !ok
	return st
}

func findFile(dir string, name func(output.Format) string) string {
	for _, f := range formats {
		p := filepath.Join(dir, name(f))
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
