package protocol

import "encoding/json"

// RPCMessage represents a JSON-RPC 2.0-like message exchanged between the
// daemon and its clients (CLI, dashboard).
// It can be a notification (no ID), a request (has ID), or a response (has ID + a response type).
type RPCMessage struct {
	ID      interface{}     `json:"id,omitempty"`      // string or number
	Type    string          `json:"type"`              // Message type (e.g. "start_workflow", "step_event")
	Payload json.RawMessage `json:"payload,omitempty"` // Typed payload
	Error   string          `json:"error,omitempty"`   // Optional error message
}

// EncodeRPC encodes any payload into a RawMessage for inclusion in an RPCMessage
func EncodeRPC(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
