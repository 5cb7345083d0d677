package llm

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultScript is replayed by ScriptedClient when no reply is queued. It lets
// the app run end to end without a model service.
var DefaultScript = []string{
	"## Chronological Interview Script\n\n",
	"### 1. Backend Engineer at Example Corp\n\n",
	"**Q1: The Technical Details**\n",
	"\"How exactly did you build the service you listed first?\"\n",
	"> *Intent: To verify they wrote the code themselves.*\n\n",
	"**Q2: The Real Impact**\n",
	"\"You mention faster response times. How did you measure that?\"\n",
	"> *Intent: To see if the metric is real.*\n\n",
	"**Q3: The Hard Part**\n",
	"\"What was the hardest bug you fixed in that role?\"\n",
	"> *Intent: To test their problem-solving skills.*\n",
}

// SendCall records one SendStream call.
type SendCall struct {
	SessionID string
	Message   string
}

// ScriptedClient is an in-memory Client that replays queued fragment scripts.
// It backs tests and the offline provider.
type ScriptedClient struct {
	mu sync.Mutex

	// Replies are consumed in order, one per SendStream call, across sessions.
	Replies [][]string
	// DefaultReply is used once Replies is exhausted.
	DefaultReply []string

	// CreateErr fails CreateSession.
	CreateErr error
	// StreamErr fails the next stream after StreamErrAfter fragments, then clears.
	StreamErr      error
	StreamErrAfter int
	// Delay is slept between fragments.
	Delay time.Duration

	Configs  []SessionConfig
	Calls    []SendCall
	sessions map[string]*scriptedSession
}

// NewScriptedClient returns a ScriptedClient that replies with DefaultScript.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		DefaultReply: DefaultScript,
		sessions:     make(map[string]*scriptedSession),
	}
}

func (c *ScriptedClient) CreateSession(_ context.Context, cfg SessionConfig) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateErr != nil {
		return nil, serviceErr("creating session", c.CreateErr)
	}
	if c.sessions == nil {
		c.sessions = make(map[string]*scriptedSession)
	}
	c.Configs = append(c.Configs, cfg)
	s := &scriptedSession{id: "scripted-" + uuid.NewString(), client: c}
	c.sessions[s.id] = s
	return s, nil
}

// Close implements Provider.
func (c *ScriptedClient) Close() error {
	return nil
}

// Queue appends a reply script.
func (c *ScriptedClient) Queue(fragments ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Replies = append(c.Replies, fragments)
}

// FailNextStream makes the next stream fail after n fragments.
func (c *ScriptedClient) FailNextStream(err error, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StreamErr = err
	c.StreamErrAfter = n
}

// SendHistory returns a copy of every SendStream call.
func (c *ScriptedClient) SendHistory() []SendCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SendCall, len(c.Calls))
	copy(out, c.Calls)
	return out
}

// SessionConfigs returns a copy of every config passed to CreateSession.
func (c *ScriptedClient) SessionConfigs() []SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SessionConfig, len(c.Configs))
	copy(out, c.Configs)
	return out
}

// Closed reports whether the session with the given id was closed.
func (c *ScriptedClient) Closed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	return ok && s.closed
}

// next pops the reply and failure plan for one send.
func (c *ScriptedClient) next(sessionID, message string) (reply []string, failAfter int, failErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, SendCall{SessionID: sessionID, Message: message})

	reply = c.DefaultReply
	if len(c.Replies) > 0 {
		reply = c.Replies[0]
		c.Replies = c.Replies[1:]
	}
	failAfter, failErr = c.StreamErrAfter, c.StreamErr
	c.StreamErr, c.StreamErrAfter = nil, 0
	return reply, failAfter, failErr
}

type scriptedSession struct {
	id     string
	client *ScriptedClient
	closed bool
}

func (s *scriptedSession) ID() string { return s.id }

func (s *scriptedSession) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	s.client.mu.Lock()
	closed := s.closed
	s.client.mu.Unlock()
	if closed {
		return failed(serviceErr("sending message", ErrSessionClosed))
	}

	var once sync.Once
	return func(yield func(string, error) bool) {
		sent := false
		once.Do(func() { sent = true })
		if !sent {
			return
		}

		reply, failAfter, failErr := s.client.next(s.id, message)
		for i, frag := range reply {
			if failErr != nil && i == failAfter {
				yield("", serviceErr("streaming reply", failErr))
				return
			}
			if i > 0 && s.client.Delay > 0 {
				select {
				case <-ctx.Done():
					yield("", serviceErr("streaming reply", ctx.Err()))
					return
				case <-time.After(s.client.Delay):
				}
			}
			if err := ctx.Err(); err != nil {
				yield("", serviceErr("streaming reply", err))
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if failErr != nil {
			yield("", serviceErr("streaming reply", failErr))
		}
	}
}

func (s *scriptedSession) Close() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	s.closed = true
	return nil
}
