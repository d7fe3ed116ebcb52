// Package markdown renders post abstracts and about-page text as a templ
// component.
package markdown

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// engine escapes raw HTML; abstracts are author text, not trusted markup.
var engine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Markdown returns a templ.Component that renders md as HTML.
func Markdown(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		if err := RenderMarkdown(&buf, content); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// RenderMarkdown writes the HTML representation of md to buf.
func RenderMarkdown(buf *bytes.Buffer, md string) error {
	if err := engine.Convert([]byte(md), buf); err != nil {
		return fmt.Errorf("markdown: %w", err)
	}
	return nil
}

// HTML renders md and returns the result as a string.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, md); err != nil {
		return "", err
	}
	return buf.String(), nil
}
