// Package envelope decodes inbound relay frames into typed messages and encodes
// the outbound notifications the relay emits.
//
// Every frame on the wire is a flat JSON object carrying a "type" discriminator.
// Inbound frames put their fields under "payload" (plus "clientId" for takt
// viewers), outbound frames are flat.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope type tags.
const (
	TypeRegister         = "register"
	TypeTaktViewer       = "taktViewer"
	TypeRepositoraAnswer = "repositora_answer"
	TypePing             = "ping"
	TypePong             = "pong"
	TypeTaktAlert        = "taktAlert"
)

// Message is one decoded envelope. The concrete type selects the behavior.
type Message interface {
	Type() string
}

// Register asks the relay to bind the sending connection to ID.
type Register struct {
	ID string
}

// TaktViewer carries a takt time reading addressed to the client registered as ClientID.
// TaktTime and Text are opaque JSON values and are nil when the frame omits them.
type TaktViewer struct {
	ClientID string
	TaktTime json.RawMessage
	Text     json.RawMessage
}

// RepositoraAnswer is a stocker's reply to a production ticket. The relay accepts
// it without acting on it yet.
type RepositoraAnswer struct {
	Fields map[string]json.RawMessage
}

// Ping asks for a Pong on the same connection.
type Ping struct{}

// Pong answers a Ping.
type Pong struct{}

// TaktAlert is delivered to the client a TaktViewer was addressed to.
// ClientID is the recipient's own registered identifier.
type TaktAlert struct {
	Text     json.RawMessage
	TaktTime json.RawMessage
	ClientID string
}

// Unknown is any frame whose type the relay does not handle.
type Unknown struct {
	Tag string
}

func (Register) Type() string         { return TypeRegister }
func (TaktViewer) Type() string       { return TypeTaktViewer }
func (RepositoraAnswer) Type() string { return TypeRepositoraAnswer }
func (Ping) Type() string             { return TypePing }
func (Pong) Type() string             { return TypePong }
func (TaktAlert) Type() string        { return TypeTaktAlert }
func (u Unknown) Type() string        { return u.Tag }

// DecodeError reports a frame that is not a well-formed envelope.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a required field that is missing or has the wrong shape.
type ValidationError struct {
	Type   string
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: field %s %s: %v", e.Type, e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: field %s %s", e.Type, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var errMissingType = errors.New("missing type")

type inboundFrame struct {
	Type     *string         `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	ClientID json.RawMessage `json:"clientId"`
}

// Decode parses data into one of the Message variants. It returns a *DecodeError
// for anything that is not a JSON object with a string "type", and a
// *ValidationError when a known field holds a value of the wrong JSON type.
// Field presence is not checked here.
func Decode(data []byte) (Message, error) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if frame.Type == nil {
		return nil, &DecodeError{Err: errMissingType}
	}

	fields := payloadFields(frame.Payload)

	switch tag := *frame.Type; tag {
	case TypeRegister:
		id, err := optionalString(fields["id"])
		if err != nil {
			return nil, &ValidationError{Type: tag, Field: "payload.id", Reason: "must be a string", Err: err}
		}
		return Register{ID: id}, nil

	case TypeTaktViewer:
		clientID, err := optionalString(frame.ClientID)
		if err != nil {
			return nil, &ValidationError{Type: tag, Field: "clientId", Reason: "must be a string", Err: err}
		}
		return TaktViewer{
			ClientID: clientID,
			TaktTime: fields["takt_time"],
			Text:     fields["message"],
		}, nil

	case TypeRepositoraAnswer:
		return RepositoraAnswer{Fields: fields}, nil

	case TypePing:
		return Ping{}, nil

	default:
		return Unknown{Tag: tag}, nil
	}
}

type pongFrame struct {
	Type string `json:"type"`
}

type taktAlertFrame struct {
	Type     string          `json:"type"`
	Message  json.RawMessage `json:"message,omitempty"`
	TaktTime json.RawMessage `json:"takt_time"`
	ClientID string          `json:"clientId"`
}

// Encode serializes an outbound message. Only Pong and TaktAlert are emitted by
// the relay; any other variant is an error.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Pong:
		return json.Marshal(pongFrame{Type: TypePong})
	case TaktAlert:
		taktTime := m.TaktTime
		if len(taktTime) == 0 {
			taktTime = json.RawMessage("null")
		}
		return json.Marshal(taktAlertFrame{
			Type:     TypeTaktAlert,
			Message:  m.Text,
			TaktTime: taktTime,
			ClientID: m.ClientID,
		})
	default:
		return nil, fmt.Errorf("encode envelope: %T is not an outbound message", msg)
	}
}

// IsBlank reports whether raw is absent, JSON null, or an empty string.
func IsBlank(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 ||
		bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte(`""`))
}

// payloadFields returns the members of payload, or an empty map if payload is
// absent or not an object.
func payloadFields(payload json.RawMessage) map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	if len(payload) == 0 {
		return fields
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return map[string]json.RawMessage{}
	}
	if fields == nil {
		return map[string]json.RawMessage{}
	}
	return fields
}

// optionalString decodes raw as a string. Absent and null values yield "".
func optionalString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
