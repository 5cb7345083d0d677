// Package interview drives a mock interview: it owns the model session, the
// transcript and the view state, and streams model replies into the
// transcript as they arrive.
package interview

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanmeadows/interviewpro/internal/llm"
	"github.com/alanmeadows/interviewpro/internal/prompts"
	"github.com/alanmeadows/interviewpro/internal/transcript"
)

// Options configures a Controller.
type Options struct {
	// Model overrides the provider's default model.
	Model string
	// ReasoningEffort is the thinking budget passed to every new session.
	ReasoningEffort int
	// TurnTimeout bounds each GenerateScript/SendTurn call. Zero means no limit.
	TurnTimeout time.Duration
	// Instructions replaces the built-in persona when set.
	Instructions string
}

// Controller owns at most one live model session and the transcript fed by it.
//
// Every session is tagged with an epoch. Restart and GenerateScript bump the
// epoch and cancel the running stream, and every transcript mutation checks
// the epoch under the lock, so fragments from a discarded session are dropped.
type Controller struct {
	client     llm.Client
	opts       Options
	transcript *transcript.Store

	mu        sync.Mutex
	view      View
	loading   bool
	errMsg    string
	language  string
	session   llm.Session
	sessionID string
	epoch     uint64
	cancel    context.CancelFunc
	pending   []Event
	draining  bool

	obsMu     sync.RWMutex
	observers []observer
	nextObs   int
}

type observer struct {
	id int
	fn func(Event)
}

// New creates a Controller in the setup view.
func New(client llm.Client, opts Options) *Controller {
	return &Controller{
		client:     client,
		opts:       opts,
		transcript: transcript.New(),
		view:       ViewSetup,
	}
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers fn for every subsequent event. Events arrive in the
// order the changes happened, on whichever goroutine is delivering at the
// time, so observers must not block for long.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers = append(c.observers, observer{id: id, fn: fn})
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// GenerateScript starts a new interview: it discards any previous session,
// switches to the interview view, creates a session and streams the
// interview script into a fresh assistant turn.
//
// If the session cannot be created, or the stream fails before its first
// fragment, the controller returns to the setup view with an error message
// and an empty transcript. A failure after the first fragment keeps the
// partial script, marked interrupted, and the session stays usable.
func (c *Controller) GenerateScript(ctx context.Context, in Setup) error {
	if err := in.Validate(); err != nil {
		return err
	}
	instructions, prompt, err := c.compose(in)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	old := c.detachLocked()
	c.transcript.Reset()
	c.loading = true
	c.errMsg = ""
	c.view = ViewInterview
	c.language = strings.TrimSpace(in.Language)
	epoch := c.epoch
	ctx, cancel := c.operationContext(ctx)
	c.cancel = cancel
	st := c.stateLocked()
	c.queueLocked(Event{Type: EventStateChanged, Turn: -1, State: st})
	c.mu.Unlock()
	defer c.release(epoch, cancel)

	closeSession(old)
	c.drain()

	slog.Info("generating interview script", "language", st.Language, "epoch", epoch)

	session, err := c.client.CreateSession(ctx, llm.SessionConfig{
		Model:           c.opts.Model,
		Instructions:    instructions,
		ReasoningEffort: c.opts.ReasoningEffort,
	})
	if err != nil {
		return c.failScript(epoch, err)
	}
	if !c.adopt(epoch, session) {
		closeSession(session)
		return ErrStaleSession
	}

	opened := false
	open := func() error {
		if _, err := c.appendTurn(epoch, transcript.RoleAssistant, ""); err != nil {
			return err
		}
		opened = true
		return nil
	}

	n, err := c.pump(epoch, session.SendStream(ctx, prompt), open)
	switch {
	case err == nil:
		slog.Info("interview script streamed", "session", session.ID(), "fragments", n)
		return c.finish(epoch)
	case errors.Is(err, ErrStaleSession):
		slog.Debug("dropping script stream from discarded session", "epoch", epoch)
		return err
	case !opened:
		return c.failScript(epoch, err)
	default:
		return c.interruptScript(epoch, err)
	}
}

// SendTurn appends a user turn with text and streams the model's answer into
// a new assistant turn. A failed stream replaces the answer with
// TurnFailedMessage; the session remains usable for another try.
func (c *Controller) SendTurn(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "message"}
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	session := c.session
	epoch := c.epoch
	c.loading = true
	userIdx, err := c.transcript.Append(transcript.RoleUser, text)
	if err != nil {
		c.loading = false
		c.mu.Unlock()
		return err
	}
	userState := c.stateLocked()
	replyIdx, err := c.transcript.Append(transcript.RoleAssistant, "")
	if err != nil {
		c.loading = false
		c.mu.Unlock()
		return err
	}
	replyState := c.stateLocked()
	ctx, cancel := c.operationContext(ctx)
	c.cancel = cancel
	c.queueLocked(
		Event{Type: EventTurnAppended, Turn: userIdx, State: userState},
		Event{Type: EventTurnAppended, Turn: replyIdx, State: replyState},
	)
	c.mu.Unlock()
	defer c.release(epoch, cancel)
	c.drain()

	slog.Debug("sending interview turn", "session", session.ID(), "turn", userIdx)

	n, err := c.pump(epoch, session.SendStream(ctx, text), nil)
	switch {
	case err == nil:
		slog.Debug("interview turn streamed", "session", session.ID(), "fragments", n)
		return c.finish(epoch)
	case errors.Is(err, ErrStaleSession):
		slog.Debug("dropping turn stream from discarded session", "epoch", epoch)
		return err
	default:
		return c.failTurn(epoch, err)
	}
}

// Restart asks confirm for permission and, if granted, discards the session
// and transcript and returns to the setup view. A running stream is
// cancelled and its remaining fragments are ignored. It reports whether the
// restart happened.
func (c *Controller) Restart(confirm Confirmer) (bool, error) {
	if confirm == nil {
		return false, errors.New("restart requires confirmation")
	}
	ok, err := confirm.Confirm(RestartPrompt)
	if err != nil {
		return false, fmt.Errorf("confirming restart: %w", err)
	}
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	old := c.detachLocked()
	c.transcript.Reset()
	c.view = ViewSetup
	c.loading = false
	c.errMsg = ""
	c.language = ""
	st := c.stateLocked()
	c.queueLocked(Event{Type: EventReset, Turn: -1, State: st})
	c.mu.Unlock()

	closeSession(old)
	slog.Info("interview restarted", "epoch", st.Epoch)
	c.drain()
	return true, nil
}

// Close discards the live session without touching the transcript.
func (c *Controller) Close() {
	c.mu.Lock()
	old := c.detachLocked()
	c.loading = false
	c.queueLocked(Event{Type: EventStateChanged, Turn: -1, State: c.stateLocked()})
	c.mu.Unlock()

	closeSession(old)
	c.drain()
}

func (c *Controller) compose(in Setup) (instructions, prompt string, err error) {
	instructions = c.opts.Instructions
	if instructions == "" {
		if instructions, err = prompts.Persona(); err != nil {
			return "", "", fmt.Errorf("loading persona: %w", err)
		}
	}
	prompt, err = prompts.ScriptRequest(in.Language, in.Resume, in.JobDescription)
	if err != nil {
		return "", "", fmt.Errorf("composing script request: %w", err)
	}
	return instructions, prompt, nil
}

// pump applies fragments from seq to the last turn in arrival order, storing
// the cumulative text each time. open, when non-nil, runs once before the
// first fragment is applied (or when the stream ends without fragments).
func (c *Controller) pump(epoch uint64, seq iter.Seq2[string, error], open func() error) (int, error) {
	var (
		full    strings.Builder
		applied int
	)
	for frag, err := range seq {
		if !c.current(epoch) {
			return applied, ErrStaleSession
		}
		if err != nil {
			return applied, err
		}
		if open != nil {
			if err := open(); err != nil {
				return applied, err
			}
			open = nil
		}
		if frag == "" {
			continue
		}
		full.WriteString(frag)
		if err := c.updateLast(epoch, full.String()); err != nil {
			return applied, err
		}
		applied++
	}
	if !c.current(epoch) {
		return applied, ErrStaleSession
	}
	if open != nil {
		if err := open(); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

func (c *Controller) adopt(epoch uint64, s llm.Session) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.session = s
	c.sessionID = s.ID()
	c.queueLocked(Event{Type: EventStateChanged, Turn: -1, State: c.stateLocked()})
	c.mu.Unlock()

	slog.Info("interview session created", "session", s.ID(), "epoch", epoch)
	c.drain()
	return true
}

func (c *Controller) appendTurn(epoch uint64, role transcript.Role, text string) (int, error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return -1, ErrStaleSession
	}
	idx, err := c.transcript.Append(role, text)
	if err != nil {
		c.mu.Unlock()
		return -1, err
	}
	c.queueLocked(Event{Type: EventTurnAppended, Turn: idx, State: c.stateLocked()})
	c.mu.Unlock()
	c.drain()
	return idx, nil
}

func (c *Controller) updateLast(epoch uint64, text string) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrStaleSession
	}
	if err := c.transcript.UpdateLast(text); err != nil {
		c.mu.Unlock()
		slog.Error("transcript update without an open turn", "epoch", epoch, "error", err)
		return err
	}
	idx := c.transcript.Len() - 1
	c.queueLocked(Event{Type: EventTurnUpdated, Turn: idx, State: c.stateLocked()})
	c.mu.Unlock()

	c.drain()
	return nil
}

func (c *Controller) finish(epoch uint64) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrStaleSession
	}
	c.loading = false
	c.queueLocked(Event{Type: EventStateChanged, Turn: -1, State: c.stateLocked()})
	c.mu.Unlock()

	c.drain()
	return nil
}

// failScript rolls the optimistic view switch back.
func (c *Controller) failScript(epoch uint64, cause error) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrStaleSession
	}
	old := c.detachLocked()
	c.view = ViewSetup
	c.loading = false
	c.errMsg = ScriptFailedMessage
	c.queueLocked(Event{Type: EventStateChanged, Turn: -1, State: c.stateLocked()})
	c.mu.Unlock()

	closeSession(old)
	slog.Warn("interview script generation failed", "error", cause)
	c.drain()
	return fmt.Errorf("generating interview script: %w", cause)
}

func (c *Controller) interruptScript(epoch uint64, cause error) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrStaleSession
	}
	if err := c.transcript.MarkLastInterrupted(); err != nil {
		slog.Error("marking interrupted script", "error", err)
	}
	c.loading = false
	c.errMsg = ScriptInterruptedMessage
	idx := c.transcript.Len() - 1
	st := c.stateLocked()
	c.queueLocked(
		Event{Type: EventTurnUpdated, Turn: idx, State: st},
		Event{Type: EventStateChanged, Turn: -1, State: st},
	)
	c.mu.Unlock()

	slog.Warn("interview script stream interrupted", "session", st.SessionID, "error", cause)
	c.drain()
	return fmt.Errorf("streaming interview script: %w", cause)
}

func (c *Controller) failTurn(epoch uint64, cause error) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return ErrStaleSession
	}
	if err := c.transcript.UpdateLast(TurnFailedMessage); err != nil {
		slog.Error("replacing failed turn", "error", err)
	}
	if err := c.transcript.MarkLastInterrupted(); err != nil {
		slog.Error("marking failed turn", "error", err)
	}
	c.loading = false
	idx := c.transcript.Len() - 1
	st := c.stateLocked()
	c.queueLocked(
		Event{Type: EventTurnUpdated, Turn: idx, State: st},
		Event{Type: EventStateChanged, Turn: -1, State: st},
	)
	c.mu.Unlock()

	slog.Warn("interview turn failed", "session", st.SessionID, "error", cause)
	c.drain()
	return fmt.Errorf("sending interview turn: %w", cause)
}

// detachLocked invalidates the live session: the running stream is cancelled
// and the epoch moves on. The caller closes the returned session after
// releasing the lock.
func (c *Controller) detachLocked() llm.Session {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.epoch++
	old := c.session
	c.session = nil
	c.sessionID = ""
	return old
}

func (c *Controller) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.TurnTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.TurnTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) release(epoch uint64, cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.cancel = nil
	}
}

func (c *Controller) stateLocked() State {
	return State{
		View:      c.view,
		Loading:   c.loading,
		Error:     c.errMsg,
		SessionID: c.sessionID,
		Epoch:     c.epoch,
		Language:  c.language,
		Turns:     c.transcript.Snapshot(),
	}
}

// queueLocked records events in the order their mutations happened. The
// caller holds c.mu and calls drain after unlocking.
func (c *Controller) queueLocked(events ...Event) {
	c.pending = append(c.pending, events...)
}

// drain delivers queued events one at a time. Only one goroutine drains at
// once; events queued meanwhile, including by observers that call back into
// the controller, are delivered by the active drainer after the current one.
// An event from an epoch that has since been discarded is dropped; the event
// that discarded it is already queued behind it.
func (c *Controller) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	defer func() {
		c.draining = false
		c.mu.Unlock()
	}()

	for len(c.pending) > 0 {
		evt := c.pending[0]
		c.pending = c.pending[1:]
		if evt.State.Epoch != c.epoch {
			continue
		}
		c.mu.Unlock()
		c.deliver(evt)
		c.mu.Lock()
	}
}

func (c *Controller) deliver(evt Event) {
	c.obsMu.RLock()
	fns := make([]func(Event), len(c.observers))
	for i, o := range c.observers {
		fns[i] = o.fn
	}
	c.obsMu.RUnlock()

	for _, fn := range fns {
		// An earlier observer may have restarted the interview.
		if !c.current(evt.State.Epoch) {
			return
		}
		fn(evt)
	}
}

func closeSession(s llm.Session) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		slog.Debug("closing interview session", "session", s.ID(), "error", err)
	}
}
