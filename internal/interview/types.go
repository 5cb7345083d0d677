package interview

import (
	"errors"
	"strings"

	"github.com/alanmeadows/interviewpro/internal/transcript"
)

// View is the two-state mode switch shown to the user.
type View string

const (
	ViewSetup     View = "setup"
	ViewInterview View = "interview"
)

// User-visible messages.
const (
	ScriptFailedMessage      = "Failed to generate script. The model service might be busy."
	ScriptInterruptedMessage = "The interview script was cut off. Send a message to continue or start a new session."
	TurnFailedMessage        = "**Error:** Connection lost. Please try again."
	RestartPrompt            = "Are you sure you want to start a new session? Current progress will be lost."
)

var (
	// ErrBusy is returned when a request is already streaming.
	ErrBusy = errors.New("a request is already in progress")
	// ErrNoSession is returned by SendTurn before a script was generated or after a restart.
	ErrNoSession = errors.New("no active interview session")
	// ErrStaleSession is returned when the session a stream belonged to was
	// replaced or discarded while the stream was running.
	ErrStaleSession = errors.New("interview session was discarded")
)

// ValidationError reports a missing required input.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is required"
}

// Setup holds the inputs collected before an interview starts.
type Setup struct {
	Resume         string `json:"resume"`
	JobDescription string `json:"job_description"`
	Language       string `json:"language"`
}

// Validate checks that every field has content.
func (s Setup) Validate() error {
	switch {
	case strings.TrimSpace(s.Resume) == "":
		return &ValidationError{Field: "resume"}
	case strings.TrimSpace(s.JobDescription) == "":
		return &ValidationError{Field: "job description"}
	case strings.TrimSpace(s.Language) == "":
		return &ValidationError{Field: "language"}
	}
	return nil
}

// State is an immutable snapshot of the controller.
type State struct {
	View      View              `json:"view"`
	Loading   bool              `json:"loading"`
	Error     string            `json:"error,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Epoch     uint64            `json:"epoch"`
	Language  string            `json:"language,omitempty"`
	Turns     []transcript.Turn `json:"turns"`
}

// HasSession reports whether a live session backs this state.
func (s State) HasSession() bool {
	return s.SessionID != ""
}

// EventType names a controller notification.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventTurnAppended EventType = "turn_appended"
	EventTurnUpdated  EventType = "turn_updated"
	EventReset        EventType = "reset"
)

// Event is delivered to observers after every change. Turn is the index of
// the affected turn for turn events and -1 otherwise.
type Event struct {
	Type  EventType
	Turn  int
	State State
}

// Confirmer gates destructive actions behind a yes/no answer.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

// Confirmed always answers yes. Use it when the caller already asked.
var Confirmed Confirmer = ConfirmFunc(func(string) (bool, error) { return true, nil })
