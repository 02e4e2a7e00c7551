// Package template renders deliverable skeletons from text/template files,
// either the defaults embedded in the binary or a user-supplied directory.
package template

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	texttmpl "text/template"
	"time"

	"github.com/dusk-indust/aiproto/internal/deliverable"
)

//go:embed templates/*.md.tmpl
var builtinFS embed.FS

// Validation reports whether a deliverable's template can be rendered.
type Validation struct {
	Valid   bool   `json:"is_valid"`
	Exists  bool   `json:"exists"`
	CanLoad bool   `json:"can_load"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Data is the value passed to every template.
type Data struct {
	Kind        deliverable.Kind
	Title       string
	Brief       Brief
	Content     string
	Values      map[string]any
	GeneratedAt string
}

// Renderer loads and executes deliverable templates.
type Renderer struct {
	fsys   fs.FS
	source string
	now    func() time.Time
}

// NewRenderer returns a Renderer reading from dir, or from the embedded
// defaults when dir is empty.
func NewRenderer(dir string) *Renderer {
	if dir == "" {
		sub, _ := fs.Sub(builtinFS, "templates")
		return &Renderer{fsys: sub, source: "builtin", now: time.Now}
	}
	return &Renderer{fsys: os.DirFS(dir), source: dir, now: time.Now}
}

// Source returns "builtin" or the template directory.
func (r *Renderer) Source() string {
	return r.source
}

// FileName returns the template file name for kind.
func FileName(kind deliverable.Kind) string {
	return kind.String() + ".md.tmpl"
}

var funcs = texttmpl.FuncMap{
	"bullets": func(items []string) string {
		if len(items) == 0 {
			return "- To be defined"
		}
		var sb strings.Builder
		for i, item := range items {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("- " + item)
		}
		return sb.String()
	},
	"orDefault": func(v, fallback string) string {
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	},
	"upper": strings.ToUpper,
}

func (r *Renderer) load(kind deliverable.Kind) (*texttmpl.Template, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("template: %w: %d", deliverable.ErrUnknownKind, int(kind))
	}
	name := FileName(kind)
	src, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("template: read %s: %w", path.Join(r.source, name), err)
	}
	t, err := texttmpl.New(name).Funcs(funcs).Option("missingkey=zero").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("template: parse %s: %w", name, err)
	}
	return t, nil
}

// Render executes the template for kind. Title and GeneratedAt are filled
// in when data leaves them empty.
func (r *Renderer) Render(kind deliverable.Kind, data Data) (string, error) {
	t, err := r.load(kind)
	if err != nil {
		return "", err
	}
	data.Kind = kind
	if data.Title == "" {
		data.Title = kind.Title()
	}
	if data.GeneratedAt == "" {
		data.GeneratedAt = r.now().UTC().Format(time.RFC3339)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template: render %s: %w", kind, err)
	}
	return buf.String(), nil
}

// RenderInput parses free text into a Brief and renders kind from it.
func (r *Renderer) RenderInput(kind deliverable.Kind, input string) (string, error) {
	return r.Render(kind, Data{Brief: ParseBrief(input)})
}

// Validate checks that kind's template exists and parses.
func (r *Renderer) Validate(kind deliverable.Kind) Validation {
	v := Validation{Path: path.Join(r.source, FileName(kind))}
	if !kind.Valid() {
		v.Error = fmt.Sprintf("no template mapping for kind %d", int(kind))
		return v
	}
	if _, err := fs.Stat(r.fsys, FileName(kind)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			v.Error = "template file not found"
		} else {
			v.Error = err.Error()
		}
		return v
	}
	v.Exists = true
	if _, err := r.load(kind); err != nil {
		v.Error = err.Error()
		return v
	}
	v.CanLoad = true
	v.Valid = true
	return v
}

// Available maps each kind with a template file to its path.
func (r *Renderer) Available() map[deliverable.Kind]string {
	out := make(map[deliverable.Kind]string)
	for _, k := range deliverable.All() {
		if _, err := fs.Stat(r.fsys, FileName(k)); err == nil {
			out[k] = path.Join(r.source, FileName(k))
		}
	}
	return out
}
