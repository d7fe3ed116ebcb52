package markdown

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRenderInline(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"**bold**", "<strong>bold</strong>"},
		{"__bold__", "<strong>bold</strong>"},
		{"*italic*", "<em>italic</em>"},
		{"`code`", "<code>code</code>"},
		{"~~gone~~", "<del>gone</del>"},
	}
	for _, tt := range tests {
		got, err := HTML(tt.input)
		if err != nil {
			t.Fatalf("HTML(%q): %v", tt.input, err)
		}
		if !strings.Contains(got, tt.expected) {
			t.Errorf("HTML(%q) = %q, want it to contain %q", tt.input, got, tt.expected)
		}
	}
}

func TestRenderLink(t *testing.T) {
	got, err := HTML("[paper](https://example.com/p.pdf)")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, `<a href="https://example.com/p.pdf">paper</a>`) {
		t.Errorf("unexpected link rendering: %q", got)
	}
}

func TestRawHTMLIsOmitted(t *testing.T) {
	got, err := HTML("before <script>alert(1)</script> after")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("raw html leaked: %q", got)
	}
}

func TestRenderList(t *testing.T) {
	got, err := HTML("- one\n- two\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "<ul>") || strings.Count(got, "<li>") != 2 {
		t.Errorf("unexpected list rendering: %q", got)
	}
}

func TestMarkdownComponent(t *testing.T) {
	var buf bytes.Buffer
	if err := Markdown("# Results\n\nWe prove it.").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `<h1 id="results">Results</h1>`) {
		t.Errorf("missing heading: %q", out)
	}
	if !strings.Contains(out, "<p>We prove it.</p>") {
		t.Errorf("missing paragraph: %q", out)
	}
}
