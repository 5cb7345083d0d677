// Package render turns model markdown into sanitized HTML for the browser and
// styled text for the terminal.
package render

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	policy = bluemonday.UGCPolicy()
)

// HTML converts markdown to HTML. Model output is untrusted, so the result is
// always passed through a UGC sanitizer; raw HTML in the input never survives.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 100

// Terminal renders markdown for a terminal of the given width.
type Terminal struct {
	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
}

// NewTerminal creates a Terminal renderer. Widths below 20 fall back to DefaultWidth.
func NewTerminal(width int) (*Terminal, error) {
	if width < 20 {
		width = DefaultWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("creating terminal renderer: %w", err)
	}
	return &Terminal{width: width, renderer: r}, nil
}

// Render styles md. If styling fails the raw markdown is returned unchanged.
func (t *Terminal) Render(md string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out, err := t.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Width returns the wrap width.
func (t *Terminal) Width() int {
	return t.width
}
