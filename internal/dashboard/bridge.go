package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/alanmeadows/interviewpro/internal/interview"
	"github.com/alanmeadows/interviewpro/internal/render"
	"github.com/alanmeadows/interviewpro/internal/transcript"
)

const (
	writeTimeout = 5 * time.Second
	// sendQueueSize bounds the messages buffered for one client. A client that
	// falls this far behind is disconnected and resyncs on reconnect.
	sendQueueSize = 64
)

// Bridge manages WebSocket connections, forwards browser commands to the
// interview controller and broadcasts controller events to every client.
type Bridge struct {
	ctrl        *interview.Controller
	languages   []string
	clients     map[string]*wsClient
	mu          sync.RWMutex
	unsubscribe func()
}

// wsClient owns one connection. Messages go through a buffered queue drained
// by writeLoop, so a slow browser never stalls the interview stream.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(id string, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// NewBridge creates a Bridge and subscribes it to ctrl.
func NewBridge(ctrl *interview.Controller, languages []string) *Bridge {
	b := &Bridge{
		ctrl:      ctrl,
		languages: languages,
		clients:   make(map[string]*wsClient),
	}
	b.unsubscribe = ctrl.Subscribe(b.onEvent)
	return b
}

// Close detaches from the controller and disconnects every client.
func (b *Bridge) Close() {
	b.unsubscribe()

	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*wsClient)
	b.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}
}

// HandleWS is the HTTP handler for the /ws endpoint.
func (b *Bridge) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	id := uuid.NewString()
	client := newWSClient(id, c)
	go client.writeLoop(ctx)
	b.mu.Lock()
	b.clients[id] = client
	b.mu.Unlock()

	slog.Info("websocket client connected", "id", id, "remote", r.RemoteAddr)

	b.sendTo(client, MsgState, b.statePayload(b.ctrl.State()))
	b.readLoop(ctx, id, client)
}

func (b *Bridge) readLoop(ctx context.Context, id string, client *wsClient) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, id)
		b.mu.Unlock()
		client.close(websocket.StatusNormalClosure, "")
		slog.Info("websocket client disconnected", "id", id)
	}()

	for {
		_, data, err := client.conn.Read(ctx)
		if err != nil {
			return
		}

		var msg BridgeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("invalid ws message", "error", err, "client", id)
			continue
		}

		b.handleClientMessage(ctx, client, msg)
	}
}

func (b *Bridge) handleClientMessage(ctx context.Context, client *wsClient, msg BridgeMessage) {
	// Model calls outlive the socket that asked for them; other clients are
	// still watching the stream.
	opCtx := context.WithoutCancel(ctx)

	switch msg.Type {
	case MsgGetState:
		b.sendTo(client, MsgState, b.statePayload(b.ctrl.State()))

	case MsgGenerateScript:
		p, err := ParsePayload[GenerateScriptPayload](msg)
		if err != nil {
			b.sendTo(client, MsgError, ErrorPayload{Message: "invalid generate_script payload"})
			return
		}
		setup := interview.Setup{Resume: p.Resume, JobDescription: p.JobDescription, Language: p.Language}
		go func() {
			if err := b.ctrl.GenerateScript(opCtx, setup); err != nil {
				b.reportError(client, "generate script", err)
			}
		}()

	case MsgSendMessage:
		p, err := ParsePayload[SendMessagePayload](msg)
		if err != nil {
			b.sendTo(client, MsgError, ErrorPayload{Message: "invalid send_message payload"})
			return
		}
		go func() {
			if err := b.ctrl.SendTurn(opCtx, p.Text); err != nil {
				b.reportError(client, "send message", err)
			}
		}()

	case MsgRestart:
		p, err := ParsePayload[RestartPayload](msg)
		if err != nil {
			b.sendTo(client, MsgError, ErrorPayload{Message: "invalid restart payload"})
			return
		}
		confirm := interview.ConfirmFunc(func(string) (bool, error) { return p.Confirmed, nil })
		if _, err := b.ctrl.Restart(confirm); err != nil {
			b.reportError(client, "restart", err)
		}

	default:
		slog.Debug("unknown ws message type", "type", msg.Type)
	}
}

// reportError tells the requesting client about failures the state snapshot
// does not already show. Model failures are visible in the state (error slot
// or an inline error turn) and discarded sessions are not errors at all.
func (b *Bridge) reportError(client *wsClient, op string, err error) {
	var verr *interview.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, interview.ErrBusy), errors.Is(err, interview.ErrNoSession):
		b.sendTo(client, MsgError, ErrorPayload{Message: err.Error()})
	case errors.Is(err, interview.ErrStaleSession):
		slog.Debug("stream from discarded session ended", "op", op)
	default:
		slog.Warn("interview request failed", "op", op, "error", err)
	}
}

// --- Event handler ---

func (b *Bridge) onEvent(evt interview.Event) {
	if evt.Type == interview.EventTurnUpdated && evt.Turn >= 0 && evt.Turn < len(evt.State.Turns) {
		b.broadcast(MsgTurnUpdated, TurnUpdatedPayload{
			Index:   evt.Turn,
			Turn:    turnView(evt.State.Turns[evt.Turn]),
			Loading: evt.State.Loading,
		})
		return
	}
	b.broadcast(MsgState, b.statePayload(evt.State))
}

func (b *Bridge) statePayload(st interview.State) StatePayload {
	turns := make([]TurnView, len(st.Turns))
	for i, t := range st.Turns {
		turns[i] = turnView(t)
	}
	return StatePayload{
		View:      string(st.View),
		Loading:   st.Loading,
		Error:     st.Error,
		SessionID: st.SessionID,
		Language:  st.Language,
		Languages: b.languages,
		Turns:     turns,
	}
}

func turnView(t transcript.Turn) TurnView {
	v := TurnView{Role: string(t.Role), Text: t.Text, Interrupted: t.Interrupted}
	if t.Role == transcript.RoleAssistant && t.Text != "" {
		html, err := render.HTML(t.Text)
		if err != nil {
			slog.Warn("rendering turn", "error", err)
		}
		v.HTML = html
	}
	return v
}

// --- Send helpers ---

func (b *Bridge) broadcast(msgType string, payload any) {
	data, err := json.Marshal(BridgeMessage{
		Type:    msgType,
		Payload: mustMarshal(payload),
	})
	if err != nil {
		return
	}

	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		c.enqueue(data)
	}
}

func (b *Bridge) sendTo(client *wsClient, msgType string, payload any) {
	data, err := json.Marshal(BridgeMessage{
		Type:    msgType,
		Payload: mustMarshal(payload),
	})
	if err != nil {
		return
	}
	client.enqueue(data)
}

// enqueue hands data to the writer without blocking. A full queue means the
// client stopped reading; it is disconnected.
func (c *wsClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("websocket client too slow, disconnecting", "id", c.id)
		go c.close(websocket.StatusPolicyViolation, "client too slow")
	}
}

func (c *wsClient) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "id", c.id, "error", err)
				go c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// close stops the writer and closes the connection once.
func (c *wsClient) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(code, reason)
	})
}

// ClientCount returns the number of connected clients.
func (b *Bridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
