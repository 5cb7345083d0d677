//go:generate mockgen -source=types.go -destination=mocks/mock_llm.go -package=mocks

package llm

import (
	"context"
	"errors"
	"iter"
)

// SessionConfig is fixed at session creation and never changes afterwards.
type SessionConfig struct {
	// Model overrides the backend's default model when set.
	Model string
	// Instructions is the persona/system prompt for the whole conversation.
	Instructions string
	// ReasoningEffort is the thinking budget in tokens. Zero leaves the
	// backend default in place.
	ReasoningEffort int
}

// Client creates conversation sessions with a remote model.
type Client interface {
	// CreateSession opens a new conversation configured with cfg.
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one conversation with the remote model.
type Session interface {
	// ID identifies the session for logging.
	ID() string

	// SendStream sends message and returns the reply as a lazy sequence of
	// text fragments in arrival order. The sequence is finite and cannot be
	// restarted; ranging over it a second time sends nothing. A failure is
	// reported as a final ("", err) pair after zero or more fragments.
	SendStream(ctx context.Context, message string) iter.Seq2[string, error]

	// Close releases the session. Further sends fail.
	Close() error
}

// Provider is a Client whose lifecycle is owned by the caller.
type Provider interface {
	Client
	Close() error
}

// ErrSessionClosed is returned when sending on a closed session.
var ErrSessionClosed = errors.New("session closed")

// ServiceError is a failure reported by, or while talking to, the model service.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// serviceErr wraps err as a ServiceError unless it already is one.
func serviceErr(op string, err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Op: op, Err: err}
}

// IsServiceError reports whether err came from the model service.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// failed returns a sequence that yields only err.
func failed(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
