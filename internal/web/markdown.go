package web

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
)

// cardMarkdown renders card text written in Markdown. Raw HTML in deck files
// is dropped by goldmark's default renderer.
var cardMarkdown = goldmark.New()

func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := cardMarkdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(strings.TrimSpace(buf.String()))
}
