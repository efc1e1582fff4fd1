package hub

import (
	"encoding/json"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Event names carried in the envelope.
const (
	// EventMessage is the only application event: clients emit it and the hub
	// re-emits it to every connection.
	EventMessage = "message"
	// EventConnect is sent by the hub once a connection is registered.
	EventConnect = "connect"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrMissingEvent = errors.New("envelope has no event name")

	jsonNull = json.RawMessage("null")
)

// Message is the envelope exchanged with clients in both directions:
//
//	{"event": "message", "data": <any JSON value>}
//
// Data is opaque to the hub.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`

	// From is the id of the originating connection, empty for messages the
	// server emits itself. It is never written to the wire.
	From string `json:"-"`
}

// NewMessage builds an envelope carrying an already encoded payload.
func NewMessage(event string, payload json.RawMessage) *Message {
	if len(payload) == 0 {
		payload = jsonNull
	}
	return &Message{Event: event, Data: payload}
}

// ConnectMessage is the greeting that tells a client its connection id.
func ConnectMessage(connID string) *Message {
	data, _ := jsonAPI.Marshal(map[string]string{"id": connID})
	return NewMessage(EventConnect, data)
}

// DecodeMessage parses a client frame. The payload is kept verbatim.
func DecodeMessage(frame []byte) (*Message, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	var msg Message
	if err := jsonAPI.Unmarshal(frame, &msg); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if msg.Event == "" {
		return nil, ErrMissingEvent
	}
	if len(msg.Data) == 0 {
		msg.Data = jsonNull
	}
	return &msg, nil
}

// Encode renders the envelope as a single JSON document.
func (m *Message) Encode() ([]byte, error) {
	out := *m
	if len(out.Data) == 0 {
		out.Data = jsonNull
	}
	data, err := jsonAPI.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}
