// Package output writes generated deliverables to disk.
package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/aiproto/internal/deliverable"
	"github.com/dusk-indust/aiproto/internal/orchestrator"
)

// Format is the on-disk encoding of generated content.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// ParseFormat maps a name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMarkdown, FormatJSON:
		return f, nil
	case "", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("output: unknown format %q (want markdown or json)", s)
	}
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == FormatJSON {
		return "json"
	}
	return "md"
}

// MergedName is the file name of a merged document.
func MergedName(f Format) string { return "merged_deliverables." + f.Ext() }

// DeliverableName is the file name of one deliverable.
func DeliverableName(k deliverable.Kind, f Format) string { return k.String() + "." + f.Ext() }

// ErrNotDirectory is returned when the output path exists as a file.
var ErrNotDirectory = errors.New("output: path exists but is not a directory")

// EnsureDir creates dir if needed.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	case err == nil:
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("output: stat %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: create directory: %w", err)
	}
	return nil
}

// FormatContent encodes Markdown content for f. JSON content that is already
// valid JSON is re-indented; anything else is wrapped as {"content": ...}.
func FormatContent(content string, f Format) (string, error) {
	if f != FormatJSON {
		return content, nil
	}
	if json.Valid([]byte(content)) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(content), "", "  "); err == nil {
			return buf.String(), nil
		}
	}
	data, err := json.MarshalIndent(map[string]string{"content": content}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("output: encode json: %w", err)
	}
	return string(data), nil
}

// Writer saves a run's documents into Dir.
type Writer struct {
	Dir    string
	Format Format

	// Raw skips FormatContent for the main document.
	Raw bool

	// HTML adds a rendered .html preview next to a Markdown main document.
	HTML bool
}

// Written lists the files produced by Save.
type Written struct {
	Main         string   // merged or primary document; empty when nothing succeeded
	Deliverables []string // per-deliverable files, unmerged runs only
	HTML         string
}

// Save writes res. A merged document goes to merged_deliverables.<ext>.
// Otherwise every successful deliverable is written to <kind>.<ext> and the
// first one is also the main document generated_content.<ext>.
func (w Writer) Save(res *orchestrator.Result) (*Written, error) {
	if err := EnsureDir(w.Dir); err != nil {
		return nil, err
	}
	out := &Written{}

	var content, name string
	if res.MergedDocument != "" {
		content, name = res.MergedDocument, MergedName(w.Format)
	} else {
		for _, o := range res.Succeeded() {
			body, err := FormatContent(o.Content, w.Format)
			if err != nil {
				return out, err
			}
			p, err := w.write(DeliverableName(o.Kind, w.Format), body)
			if err != nil {
				return out, err
			}
			out.Deliverables = append(out.Deliverables, p)
			if content == "" {
				content = o.Content
			}
		}
		name = "generated_content." + w.Format.Ext()
	}
	if content == "" {
		return out, nil
	}

	body := content
	if !w.Raw {
		var err error
		if body, err = FormatContent(content, w.Format); err != nil {
			return out, err
		}
	}
	p, err := w.write(name, body)
	if err != nil {
		return out, err
	}
	out.Main = p

	if w.HTML && w.Format == FormatMarkdown {
		page, err := HTML(content, "")
		if err != nil {
			return out, err
		}
		hp, err := w.write(strings.TrimSuffix(name, filepath.Ext(name))+".html", page)
		if err != nil {
			return out, err
		}
		out.HTML = hp
	}
	return out, nil
}

func (w Writer) write(name, body string) (string, error) {
	p := filepath.Join(w.Dir, name)
	if err := WriteFileAtomic(p, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("output: write %s: %w", p, err)
	}
	return p, nil
}
