package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/alanmeadows/interviewpro/internal/interview"
	"github.com/alanmeadows/interviewpro/internal/render"
	"github.com/alanmeadows/interviewpro/internal/transcript"
)

// blockPrinter prints a streaming reply. Raw mode writes every new fragment
// immediately; styled mode waits for each markdown block to finish (a blank
// line outside a code fence) and renders it with glamour.
type blockPrinter struct {
	w        io.Writer
	term     *render.Terminal
	shown    string
	diverged bool
}

func (p *blockPrinter) update(text string) {
	if p.diverged {
		return
	}
	if !strings.HasPrefix(text, p.shown) {
		p.diverged = true
		return
	}
	if p.term == nil {
		io.WriteString(p.w, text[len(p.shown):])
		p.shown = text
		return
	}
	end := flushPoint(text, len(p.shown))
	if end > len(p.shown) {
		p.write(text[len(p.shown):end])
		p.shown = text[:end]
	}
}

// finish prints whatever update held back once the turn is complete.
func (p *blockPrinter) finish(t transcript.Turn) {
	if t.Text == interview.TurnFailedMessage || p.diverged || !strings.HasPrefix(t.Text, p.shown) {
		if p.shown != "" {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintln(p.w, errorStyle.Render(strings.ReplaceAll(t.Text, "**", "")))
		return
	}

	rest := t.Text[len(p.shown):]
	if p.term == nil {
		io.WriteString(p.w, rest)
		fmt.Fprintln(p.w)
	} else if strings.TrimSpace(rest) != "" {
		p.write(rest)
	}
	p.shown = t.Text

	if t.Interrupted {
		fmt.Fprintln(p.w, errorStyle.Render("(response interrupted)"))
	}
}

func (p *blockPrinter) write(md string) {
	io.WriteString(p.w, p.term.Render(md))
}

// flushPoint returns the end of the last complete block of text that starts
// at or after from.
func flushPoint(text string, from int) int {
	end := from
	for i := from; ; {
		j := strings.Index(text[i:], "\n\n")
		if j < 0 {
			return end
		}
		cand := i + j + 2
		if strings.Count(text[:cand], "```")%2 == 0 {
			end = cand
		}
		i = cand
	}
}
