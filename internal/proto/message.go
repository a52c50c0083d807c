// Package proto holds the wire records shared by the HTTP API and its clients.
package proto

import "encoding/json"

const (
	ProtocolVersion = 1

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventMessage = "message"
)

// Outbound is the envelope for frames written on a chat stream.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// RawOutbound is Outbound as seen by a reader that decodes Data lazily.
type RawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// MessageFrame wraps a message record into an event envelope.
func MessageFrame(rec MessageRecord) Outbound {
	return Outbound{Type: OutboundTypeEvent, Event: EventMessage, Data: rec}
}

// ErrorFrame builds an error envelope.
func ErrorFrame(code, msg string) Outbound {
	return Outbound{Type: OutboundTypeError, Error: &Error{Code: code, Msg: msg}}
}
