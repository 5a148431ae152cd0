// Package protocol defines the wire contract between a game client and the
// session server: the JSON envelope, the request/ack payloads, and the
// room-level broadcast payloads. Game-specific payloads (strokes, guesses)
// live with their game package; this layer treats them as opaque.
package protocol

import "encoding/json"

// ClientMessage is the envelope for everything a client sends. Seq is set
// (non-zero) when the client expects an ack for this message; fire-and-forget
// messages leave it zero.
type ClientMessage struct {
	Type string          `json:"type"`
	Seq  int             `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the envelope for acks and broadcasts. An ack carries
// Type == TypeAck and echoes the request's Seq.
type ServerMessage struct {
	Type string          `json:"type"`
	Seq  int             `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Envelope helpers. Marshal errors on these payload types only happen with
// unmarshalable settings values, which the UI layer validates before us.

func NewClientMessage(msgType string, seq int, payload any) (ClientMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ClientMessage{}, err
	}
	return ClientMessage{Type: msgType, Seq: seq, Data: data}, nil
}

func NewServerMessage(msgType string, payload any) (ServerMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ServerMessage{}, err
	}
	return ServerMessage{Type: msgType, Data: data}, nil
}
