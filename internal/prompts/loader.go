// Package prompts holds the persona and request templates sent to the model.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

//go:embed *.md
var builtinFS embed.FS

// Load returns the prompt template for the given name.
// Checks user override at ~/.config/interviewpro/prompts/<name> first.
func Load(name string) (*template.Template, error) {
	// Check user override
	configDir, err := os.UserConfigDir()
	if err == nil {
		userPath := filepath.Join(configDir, "interviewpro", "prompts", name)
		if data, err := os.ReadFile(userPath); err == nil {
			return template.New(name).Parse(string(data))
		}
	}

	// Fall back to embedded
	data, err := builtinFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("loading prompt template %s: %w", name, err)
	}
	return template.New(name).Parse(string(data))
}

// Execute loads a template and executes it with the given data map.
func Execute(name string, data map[string]string) (string, error) {
	tmpl, err := Load(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing prompt template %s: %w", name, err)
	}
	return buf.String(), nil
}

// List returns the names of all available prompt templates.
func List() ([]string, error) {
	entries, err := builtinFS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Built-in template names.
const (
	PersonaTemplate       = "persona.md"
	ScriptRequestTemplate = "script_request.md"
)

// markerLine matches the section delimiters used in script_request.md.
var markerLine = regexp.MustCompile(`(?m)^([ \t]*=+[ \t]*(?:BEGIN|END)\b.*)$`)

// Persona returns the interviewer instructions fixed for a whole session.
func Persona() (string, error) {
	return Execute(PersonaTemplate, nil)
}

// ScriptRequest renders the message that asks for the interview script.
// Pasted text that looks like a section marker is quoted so it cannot close
// its section early.
func ScriptRequest(language, resume, jobDescription string) (string, error) {
	return Execute(ScriptRequestTemplate, map[string]string{
		"Language":       strings.TrimSpace(language),
		"Resume":         quoteMarkers(strings.TrimSpace(resume)),
		"JobDescription": quoteMarkers(strings.TrimSpace(jobDescription)),
	})
}

func quoteMarkers(s string) string {
	return markerLine.ReplaceAllString(s, "> $1")
}
