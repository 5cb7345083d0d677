package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanmeadows/interviewpro/internal/config"
	"github.com/alanmeadows/interviewpro/internal/interview"
	"github.com/alanmeadows/interviewpro/internal/llm"
	"github.com/alanmeadows/interviewpro/internal/store"
)

var testSetup = interview.Setup{
	Resume:         "Go developer with 6 years of backend work.",
	JobDescription: "Staff engineer, distributed systems.",
	Language:       "English",
}

type fixture struct {
	client *llm.ScriptedClient
	ctrl   *interview.Controller
	server *Server
	http   *httptest.Server
	cfg    *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := config.DefaultConfig()
	cfg.Export.Dir = t.TempDir()

	client := llm.NewScriptedClient()
	ctrl := interview.New(client, interview.Options{})
	s := NewServer(ctrl, &cfg)
	ts := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		s.bridge.Close()
		ts.Close()
		ctrl.Close()
	})
	return &fixture{client: client, ctrl: ctrl, server: s, http: ts, cfg: &cfg}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func writeMsg[T any](t *testing.T, conn *websocket.Conn, msgType string, payload T) {
	t.Helper()
	msg, err := NewMessage(msgType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, data))
}

// readUntil reads messages until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(BridgeMessage) bool) BridgeMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg BridgeMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func stateMatching(t *testing.T, pred func(StatePayload) bool) func(BridgeMessage) bool {
	return func(msg BridgeMessage) bool {
		if msg.Type != MsgState {
			return false
		}
		p, err := ParsePayload[StatePayload](msg)
		require.NoError(t, err)
		return pred(p)
	}
}

func TestWebSocketInterviewFlow(t *testing.T) {
	f := newFixture(t)
	f.client.Queue("## Interview Script\n", "**Q1:** Why Go?")
	f.client.Queue("Tell me ", "more.")

	conn := f.dial(t)

	first := readUntil(t, conn, func(BridgeMessage) bool { return true })
	require.Equal(t, MsgState, first.Type)
	initial, err := ParsePayload[StatePayload](first)
	require.NoError(t, err)
	assert.Equal(t, "setup", initial.View)
	assert.Equal(t, f.cfg.Interview.Languages, initial.Languages)

	writeMsg(t, conn, MsgGenerateScript, GenerateScriptPayload{
		Resume:         testSetup.Resume,
		JobDescription: testSetup.JobDescription,
		Language:       testSetup.Language,
	})

	var updates []TurnUpdatedPayload
	msg := readUntil(t, conn, func(m BridgeMessage) bool {
		if m.Type == MsgTurnUpdated {
			p, err := ParsePayload[TurnUpdatedPayload](m)
			require.NoError(t, err)
			updates = append(updates, p)
			return false
		}
		return stateMatching(t, func(p StatePayload) bool {
			return p.View == "interview" && !p.Loading && len(p.Turns) == 1
		})(m)
	})
	st, err := ParsePayload[StatePayload](msg)
	require.NoError(t, err)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, "assistant", st.Turns[0].Role)
	assert.Contains(t, st.Turns[0].HTML, "<h2>Interview Script</h2>")
	assert.Contains(t, st.Turns[0].HTML, "<strong>Q1:</strong>")

	require.Len(t, updates, 2)
	assert.Equal(t, "## Interview Script\n", updates[0].Turn.Text)
	assert.Equal(t, "## Interview Script\n**Q1:** Why Go?", updates[1].Turn.Text)
	assert.True(t, updates[1].Loading)

	writeMsg(t, conn, MsgSendMessage, SendMessagePayload{Text: "Goroutines <b>rock</b>"})
	msg = readUntil(t, conn, stateMatching(t, func(p StatePayload) bool {
		return !p.Loading && len(p.Turns) == 3
	}))
	st, err = ParsePayload[StatePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "Goroutines <b>rock</b>", st.Turns[1].Text)
	assert.Empty(t, st.Turns[1].HTML)
	assert.Equal(t, "Tell me more.", st.Turns[2].Text)

	writeMsg(t, conn, MsgRestart, RestartPayload{Confirmed: false})
	writeMsg(t, conn, MsgGetState, struct{}{})
	msg = readUntil(t, conn, func(m BridgeMessage) bool { return m.Type == MsgState })
	st, err = ParsePayload[StatePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "interview", st.View)

	writeMsg(t, conn, MsgRestart, RestartPayload{Confirmed: true})
	readUntil(t, conn, stateMatching(t, func(p StatePayload) bool {
		return p.View == "setup" && len(p.Turns) == 0 && p.SessionID == ""
	}))
}

func TestWebSocketReportsValidationErrors(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	writeMsg(t, conn, MsgGenerateScript, GenerateScriptPayload{JobDescription: "jd", Language: "English"})
	msg := readUntil(t, conn, func(m BridgeMessage) bool { return m.Type == MsgError })
	p, err := ParsePayload[ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "resume is required", p.Message)

	writeMsg(t, conn, MsgSendMessage, SendMessagePayload{Text: "hello"})
	msg = readUntil(t, conn, func(m BridgeMessage) bool { return m.Type == MsgError })
	p, err = ParsePayload[ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, interview.ErrNoSession.Error(), p.Message)
	assert.Empty(t, f.client.SessionConfigs())
}

func TestWebSocketScriptFailureShowsErrorSlot(t *testing.T) {
	f := newFixture(t)
	f.client.CreateErr = io.ErrUnexpectedEOF
	conn := f.dial(t)

	writeMsg(t, conn, MsgGenerateScript, GenerateScriptPayload{
		Resume:         testSetup.Resume,
		JobDescription: testSetup.JobDescription,
		Language:       testSetup.Language,
	})
	msg := readUntil(t, conn, stateMatching(t, func(p StatePayload) bool {
		return p.Error != ""
	}))
	st, err := ParsePayload[StatePayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "setup", st.View)
	assert.Equal(t, interview.ScriptFailedMessage, st.Error)
	assert.Empty(t, st.Turns)
}

func TestStateEndpointAndStaticUI(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st StatePayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "setup", st.View)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Turns)

	resp, err = http.Get(f.http.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Interviewer Pro")
}

func TestRestartEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.GenerateScript(context.Background(), testSetup))

	post := func(body string) map[string]any {
		resp, err := http.Post(f.http.URL+"/api/restart", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.Equal(t, false, post(`{"confirmed":false}`)["restarted"])
	assert.Equal(t, interview.ViewInterview, f.ctrl.State().View)

	assert.Equal(t, true, post(`{"confirmed":true}`)["restarted"])
	assert.Equal(t, interview.ViewSetup, f.ctrl.State().View)

	resp, err := http.Post(f.http.URL+"/api/restart", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/api/export")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.client.Queue("## Script\n\n**Q1:** Why Go?")
	require.NoError(t, f.ctrl.GenerateScript(context.Background(), testSetup))

	resp, err = http.Get(f.http.URL + "/api/export")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "interview-")
	assert.Contains(t, string(body), "# Interview Transcript")
	assert.Contains(t, string(body), "**Q1:** Why Go?")
	assert.Contains(t, string(body), "language: English")

	resp, err = http.Post(f.http.URL+"/api/export", "application/json", nil)
	require.NoError(t, err)
	var saved map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, store.Exists(saved["path"]))

	resp, err = http.Get(f.http.URL + "/api/exports")
	require.NoError(t, err)
	var exports []store.ExportSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&exports))
	resp.Body.Close()
	require.Len(t, exports, 1)
	assert.Equal(t, "English", exports[0].Language)
	assert.Equal(t, 1, exports[0].Turns)
}

func TestRemoteAccessRequiresKey(t *testing.T) {
	f := newFixture(t)
	h := f.server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = "203.0.113.7:52000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/state?key="+f.server.AccessKey(), nil)
	req.RemoteAddr = "203.0.113.7:52000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/state", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = "203.0.113.7:52000"
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForwardedLoopbackRequestNeedsKey(t *testing.T) {
	f := newFixture(t)
	h := f.server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = "127.0.0.1:52000"
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.RemoteAddr = "127.0.0.1:52000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSlowClientDoesNotStallBroadcast(t *testing.T) {
	f := newFixture(t)
	f.dial(t) // never reads
	require.Eventually(t, func() bool { return f.server.bridge.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	big := ErrorPayload{Message: strings.Repeat("x", 256<<10)}
	start := time.Now()
	for i := 0; i < 4*sendQueueSize; i++ {
		f.server.bridge.broadcast(MsgError, big)
	}
	assert.Less(t, time.Since(start), writeTimeout)

	require.Eventually(t, func() bool { return f.server.bridge.ClientCount() == 0 }, 20*time.Second, 20*time.Millisecond)
}
