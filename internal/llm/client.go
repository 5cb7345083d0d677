package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	sdk "github.com/github/copilot-sdk/go"
)

// CopilotClient wraps the GitHub Copilot SDK to implement Provider.
type CopilotClient struct {
	sdk       *sdk.Client
	model     string
	serverURL string
	sessions  map[string]*copilotSession
	mu        sync.Mutex
	started   bool
}

// NewCopilotClient creates a CopilotClient that uses model unless a session
// asks for another one. serverURL connects to an existing headless copilot
// server; when empty the SDK spawns its own process.
func NewCopilotClient(model, serverURL string) *CopilotClient {
	return &CopilotClient{
		model:     model,
		serverURL: serverURL,
		sessions:  make(map[string]*copilotSession),
	}
}

// Start initializes the underlying Copilot SDK client.
func (c *CopilotClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	var opts *sdk.ClientOptions
	if c.serverURL != "" {
		opts = &sdk.ClientOptions{
			CLIUrl:    c.serverURL,
			AutoStart: sdk.Bool(false),
		}
	}
	c.sdk = sdk.NewClient(opts)
	if err := c.sdk.Start(ctx); err != nil {
		return serviceErr("starting copilot SDK", err)
	}
	c.started = true
	slog.Info("copilot LLM client started", "model", c.model, "shared_server", c.serverURL != "")
	return nil
}

// Close shuts down all sessions and the SDK client.
func (c *CopilotClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.sessions {
		_ = s.session.Destroy()
		delete(c.sessions, id)
	}
	c.started = false
	if c.sdk != nil {
		return c.sdk.Stop()
	}
	return nil
}

func (c *CopilotClient) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, serviceErr("creating session", errors.New("client not started"))
	}

	model := c.model
	if cfg.Model != "" {
		model = cfg.Model
	}
	// The SDK exposes no token budget, so ReasoningEffort is not forwarded.
	slog.Debug("creating copilot session", "model", model, "reasoning_effort", cfg.ReasoningEffort)

	session, err := c.sdk.CreateSession(ctx, &sdk.SessionConfig{
		Model:     model,
		Streaming: true,
		SystemMessage: &sdk.SystemMessageConfig{
			Mode:    "replace",
			Content: cfg.Instructions,
		},
		OnPermissionRequest: sdk.PermissionHandler.ApproveAll,
	})
	if err != nil {
		return nil, serviceErr("creating session", err)
	}

	s := &copilotSession{session: session, client: c}
	c.sessions[session.SessionID] = s
	return s, nil
}

func (c *CopilotClient) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

type copilotSession struct {
	session *sdk.Session
	client  *CopilotClient

	mu     sync.Mutex
	closed bool
}

func (s *copilotSession) ID() string { return s.session.SessionID }

// SendStream sends message and turns the session's delta events into fragments.
// The stream ends on SessionIdle and fails on SessionError.
func (s *copilotSession) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return failed(serviceErr("sending message", ErrSessionClosed))
	}

	var once sync.Once
	return func(yield func(string, error) bool) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return
		}

		events := make(chan sdk.SessionEvent, 64)
		done := make(chan struct{})
		defer close(done)

		unsubscribe := s.session.On(func(evt sdk.SessionEvent) {
			switch evt.Type {
			case sdk.SessionEventTypeAssistantMessageDelta, sdk.SessionEventTypeSessionIdle, sdk.SessionEventTypeSessionError:
				select {
				case events <- evt:
				case <-done:
				}
			}
		})
		defer unsubscribe()

		slog.Debug("sending prompt via copilot SDK", "session", s.ID())
		if _, err := s.session.Send(ctx, sdk.MessageOptions{Prompt: message}); err != nil {
			yield("", serviceErr("sending message", err))
			return
		}

		for {
			select {
			case <-ctx.Done():
				s.abort()
				yield("", serviceErr("streaming reply", ctx.Err()))
				return
			case evt := <-events:
				switch evt.Type {
				case sdk.SessionEventTypeAssistantMessageDelta:
					if evt.Data.DeltaContent == nil {
						continue
					}
					if !yield(*evt.Data.DeltaContent, nil) {
						s.abort()
						return
					}
				case sdk.SessionEventTypeSessionIdle:
					return
				case sdk.SessionEventTypeSessionError:
					msg := "unknown session error"
					if evt.Data.Message != nil {
						msg = *evt.Data.Message
					}
					yield("", serviceErr("streaming reply", errors.New(msg)))
					return
				}
			}
		}
	}
}

func (s *copilotSession) abort() {
	if err := s.session.Abort(context.Background()); err != nil {
		slog.Debug("aborting copilot turn failed", "session", s.ID(), "error", err)
	}
}

func (s *copilotSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.client.forget(s.ID())
	slog.Debug("destroying copilot session", "session", s.ID())
	if err := s.session.Destroy(); err != nil {
		return fmt.Errorf("destroying session %s: %w", s.ID(), err)
	}
	return nil
}
