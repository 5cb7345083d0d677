package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/interviewpro/internal/transcript"
)

func sampleTurns() []transcript.Turn {
	return []transcript.Turn{
		{Role: transcript.RoleAssistant, Text: "## Script\n\n**Q1:** Why Go?\n"},
		{Role: transcript.RoleUser, Text: "Because of goroutines."},
		{Role: transcript.RoleAssistant, Text: "Go deeper", Interrupted: true},
	}
}

func TestRenderTranscript(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := RenderTranscript(ExportMeta{SessionID: "s-1", Language: "English", ExportedAt: ts}, sampleTurns())

	assert.Equal(t, "s-1", GetString(doc.Frontmatter, "session"))
	assert.Equal(t, "English", GetString(doc.Frontmatter, "language"))
	assert.Equal(t, 3, GetInt(doc.Frontmatter, "turns"))
	assert.Equal(t, "2026-03-01T09:00:00Z", GetString(doc.Frontmatter, "exported_at"))
	assert.NotContains(t, doc.Frontmatter, "model")

	want := "# Interview Transcript\n" +
		"\n## Interviewer\n\n## Script\n\n**Q1:** Why Go?\n" +
		"\n## Candidate\n\nBecause of goroutines.\n" +
		"\n## Interviewer\n\nGo deeper\n\n_(response interrupted)_\n"
	assert.Equal(t, want, doc.Body)
}

func TestExportTranscript(t *testing.T) {
	dir := t.TempDir()
	meta := ExportMeta{
		SessionID:  "scripted-3f2a9c1e-0000",
		Language:   "中文",
		Model:      "gemini-3-pro-preview",
		ExportedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	name := ExportFilename(meta)
	assert.Equal(t, "interview-20260301-090000-3f2a9c1e.md", name)

	path := filepath.Join(dir, "nested", name)
	require.NoError(t, ExportTranscript(path, meta, sampleTurns()))

	got, err := ReadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "中文", GetString(got.Frontmatter, "language"))
	assert.Contains(t, got.Body, "Because of goroutines.")
}

func TestExportTranscriptEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	err := ExportTranscript(path, ExportMeta{}, nil)
	require.ErrorIs(t, err, transcript.ErrEmpty)
	assert.False(t, Exists(path))
}

func TestListExports(t *testing.T) {
	dir := t.TempDir()
	older := ExportMeta{SessionID: "old", ExportedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := ExportMeta{SessionID: "new", Language: "French", ExportedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, ExportTranscript(filepath.Join(dir, ExportFilename(older)), older, sampleTurns()[:1]))
	require.NoError(t, ExportTranscript(filepath.Join(dir, ExportFilename(newer)), newer, sampleTurns()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("unrelated"), 0644))

	got, err := ListExports(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].SessionID)
	assert.Equal(t, "French", got[0].Language)
	assert.Equal(t, 3, got[0].Turns)
	assert.True(t, got[0].ExportedAt.Equal(newer.ExportedAt))
	assert.Equal(t, "old", got[1].SessionID)
	assert.Equal(t, 1, got[1].Turns)
}

func TestListExportsMissingDir(t *testing.T) {
	got, err := ListExports(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
