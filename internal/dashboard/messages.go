package dashboard

import (
	"encoding/json"
	"fmt"
)

// BridgeMessage is the envelope for all WebSocket messages between
// the dashboard server and browser clients.
type BridgeMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage constructs a BridgeMessage by marshaling the given payload.
func NewMessage[T any](msgType string, payload T) (BridgeMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return BridgeMessage{}, fmt.Errorf("marshal payload: %w", err)
	}
	return BridgeMessage{Type: msgType, Payload: raw}, nil
}

// ParsePayload unmarshals the raw payload of a BridgeMessage into T.
func ParsePayload[T any](msg BridgeMessage) (T, error) {
	var v T
	if len(msg.Payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}

// Server → Client message types.
const (
	MsgState       = "state"
	MsgTurnUpdated = "turn_updated"
	MsgError       = "error"
)

// Client → Server message types.
const (
	MsgGetState       = "get_state"
	MsgGenerateScript = "generate_script"
	MsgSendMessage    = "send_message"
	MsgRestart        = "restart"
)

// ---------------------------------------------------------------------------
// Server → Client payloads
// ---------------------------------------------------------------------------

// StatePayload is the full controller snapshot as the browser sees it.
type StatePayload struct {
	View      string     `json:"view"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Language  string     `json:"language,omitempty"`
	Languages []string   `json:"languages"`
	Turns     []TurnView `json:"turns"`
}

// TurnView is one transcript entry. HTML is set for interviewer turns only
// and is already sanitized; user turns are shown as plain text.
type TurnView struct {
	Role        string `json:"role"`
	Text        string `json:"text"`
	HTML        string `json:"html,omitempty"`
	Interrupted bool   `json:"interrupted,omitempty"`
}

// TurnUpdatedPayload carries the cumulative content of one turn while it streams.
type TurnUpdatedPayload struct {
	Index   int      `json:"index"`
	Turn    TurnView `json:"turn"`
	Loading bool     `json:"loading"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Client → Server payloads
// ---------------------------------------------------------------------------

type GenerateScriptPayload struct {
	Resume         string `json:"resume"`
	JobDescription string `json:"job_description"`
	Language       string `json:"language"`
}

type SendMessagePayload struct {
	Text string `json:"text"`
}

// RestartPayload carries the browser's answer to the restart confirmation.
type RestartPayload struct {
	Confirmed bool `json:"confirmed"`
}
