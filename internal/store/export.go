package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alanmeadows/interviewpro/internal/transcript"
)

// ExportMeta describes an exported interview.
type ExportMeta struct {
	SessionID  string
	Language   string
	Model      string
	ExportedAt time.Time
}

// ExportSummary is what ListExports reads back from an export's frontmatter.
type ExportSummary struct {
	Path string
	ExportMeta
	Turns int
}

const (
	interviewerHeading = "## Interviewer"
	candidateHeading   = "## Candidate"
	interruptedNote    = "_(response interrupted)_"
)

// RenderTranscript lays the turns out as a markdown document.
func RenderTranscript(meta ExportMeta, turns []transcript.Turn) *Document {
	if meta.ExportedAt.IsZero() {
		meta.ExportedAt = time.Now()
	}

	fm := map[string]any{
		"exported_at": FormatTime(meta.ExportedAt),
		"turns":       len(turns),
	}
	if meta.SessionID != "" {
		fm["session"] = meta.SessionID
	}
	if meta.Language != "" {
		fm["language"] = meta.Language
	}
	if meta.Model != "" {
		fm["model"] = meta.Model
	}

	var b strings.Builder
	b.WriteString("# Interview Transcript\n")
	for _, t := range turns {
		b.WriteString("\n")
		if t.Role == transcript.RoleUser {
			b.WriteString(candidateHeading)
		} else {
			b.WriteString(interviewerHeading)
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(t.Text, "\n"))
		b.WriteString("\n")
		if t.Interrupted {
			b.WriteString("\n" + interruptedNote + "\n")
		}
	}

	return &Document{Frontmatter: fm, Body: b.String()}
}

// ExportTranscript writes the transcript to path under an exclusive lock.
func ExportTranscript(path string, meta ExportMeta, turns []transcript.Turn) error {
	if len(turns) == 0 {
		return fmt.Errorf("exporting transcript: %w", transcript.ErrEmpty)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	doc := RenderTranscript(meta, turns)
	return WithLock(path, DefaultLockTimeout, func() error {
		return WriteDocument(path, doc)
	})
}

// ExportFilename names an export after its timestamp and session.
func ExportFilename(meta ExportMeta) string {
	ts := meta.ExportedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	name := "interview-" + ts.UTC().Format("20060102-150405")
	if id := shortID(meta.SessionID); id != "" {
		name += "-" + id
	}
	return name + ".md"
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "scripted-")
	var b strings.Builder
	for _, r := range id {
		if b.Len() == 8 {
			break
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ListExports returns the exports in dir, newest first. A missing directory
// yields no exports.
func ListExports(dir string) ([]ExportSummary, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "interview-*.md"))
	if err != nil {
		return nil, fmt.Errorf("listing exports in %s: %w", dir, err)
	}

	var out []ExportSummary
	for _, path := range matches {
		var doc *Document
		err := WithReadLock(path, DefaultLockTimeout, func() error {
			var rerr error
			doc, rerr = ReadDocument(path)
			return rerr
		})
		if err != nil {
			return nil, err
		}
		fm := doc.Frontmatter
		out = append(out, ExportSummary{
			Path: path,
			ExportMeta: ExportMeta{
				SessionID:  GetString(fm, "session"),
				Language:   GetString(fm, "language"),
				Model:      GetString(fm, "model"),
				ExportedAt: GetTime(fm, "exported_at"),
			},
			Turns: GetInt(fm, "turns"),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExportedAt.After(out[j].ExportedAt)
	})
	return out, nil
}
