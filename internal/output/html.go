package output

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// DefaultHTMLTitle is the page title used when none is given.
const DefaultHTMLTitle = "AI Prototyping Tool - Generated Content"

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	// Auto heading IDs match deliverable.Kind.Anchor, so merged TOC links resolve.
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

const htmlPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>%s</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px; }
        pre { background: #f4f4f4; padding: 10px; border-radius: 5px; }
        code { background: #f4f4f4; padding: 2px 4px; border-radius: 3px; }
        table { border-collapse: collapse; }
        th, td { border: 1px solid #ddd; padding: 4px 8px; }
    </style>
</head>
<body>
%s</body>
</html>
`

// HTML converts Markdown into a standalone HTML page.
func HTML(md, title string) (string, error) {
	if title == "" {
		title = DefaultHTMLTitle
	}
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("output: render html: %w", err)
	}
	return fmt.Sprintf(htmlPage, html.EscapeString(title), body.String()), nil
}
