// Package store reads candidate documents from disk and writes interview
// transcripts as markdown files with YAML frontmatter.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// MaxInputSize caps resume and job description files.
const MaxInputSize = 1 << 20

// Document is a markdown file with optional YAML frontmatter.
type Document struct {
	Frontmatter map[string]any
	Body        string
}

// ReadDocument reads path, splitting off frontmatter when present.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}
	return parseDocument(path, data), nil
}

func parseDocument(path string, data []byte) *Document {
	var matter map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(data), &matter)
	if err != nil {
		slog.Debug("no frontmatter in document", "path", path, "error", err)
		return &Document{Frontmatter: map[string]any{}, Body: string(data)}
	}
	if matter == nil {
		matter = map[string]any{}
	}
	return &Document{Frontmatter: matter, Body: string(body)}
}

// MarshalDocument renders doc as frontmatter followed by the body.
func MarshalDocument(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if len(doc.Frontmatter) > 0 {
		fm, err := yaml.Marshal(doc.Frontmatter)
		if err != nil {
			return nil, fmt.Errorf("marshaling frontmatter: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(fm)
		buf.WriteString("---\n\n")
	}
	buf.WriteString(doc.Body)
	return buf.Bytes(), nil
}

// WriteDocument atomically writes doc to path, creating parent directories.
func WriteDocument(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	data, err := MarshalDocument(doc)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing document %s: %w", path, err)
	}
	return nil
}

// ReadBody reads the body of a markdown file, ignoring frontmatter.
func ReadBody(path string) (string, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return "", err
	}
	return doc.Body, nil
}

// ReadInput loads a resume or job description. "-" reads from stdin instead of a
// file. The text must be valid UTF-8, non-empty and at most MaxInputSize bytes.
func ReadInput(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = readLimited(stdin)
	} else {
		var f *os.File
		if f, err = os.Open(path); err == nil {
			data, err = readLimited(f)
			f.Close()
		}
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("reading %s: not valid UTF-8 text", path)
	}

	text := strings.TrimSpace(parseDocument(path, data).Body)
	if text == "" {
		return "", fmt.Errorf("reading %s: file is empty", path)
	}
	return text, nil
}

var errTooLarge = errors.New("input exceeds 1 MiB")

func readLimited(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, os.ErrInvalid
	}
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, MaxInputSize+1))
	if err != nil {
		return nil, err
	}
	if n > MaxInputSize {
		return nil, errTooLarge
	}
	return buf.Bytes(), nil
}

// atomicWriteFile writes to a sibling temp file and renames it into place so
// readers never observe a partial file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
