// Package protocol defines the JSON envelopes exchanged on the control and
// data planes.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Actions recognised by the listeners.
const (
	ActionRegister = "register"
	ActionCreate   = "create"
	ActionJoin     = "join"
	ActionAutoJoin = "autojoin"
	ActionLeave    = "leave"
	ActionGetRooms = "get_rooms"
	ActionLookup   = "lookup"
	ActionSend     = "send"
	ActionSendTo   = "sendto"
)

var (
	// ErrInvalidJSON means the bytes are not a JSON document.
	ErrInvalidJSON = errors.New("invalid json")
	// ErrInvalidEnvelope means the JSON does not have the envelope shape.
	ErrInvalidEnvelope = errors.New("invalid request")
)

var validate = validator.New()

// Envelope is the request shape shared by both planes. Absent keys decode to
// their zero value.
type Envelope struct {
	Action     string          `json:"action" validate:"required"`
	Identifier string          `json:"identifier,omitempty"`
	RoomID     string          `json:"room_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Decode parses and validates a request envelope.
//
// Postcondition: Returns the envelope, or an error wrapping ErrInvalidJSON or
// ErrInvalidEnvelope.
func Decode(data []byte) (Envelope, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return Envelope{}, ErrInvalidJSON
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := validate.Struct(env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return env, nil
}

// Encode serializes an envelope; used by clients and tests.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Reply is the control-plane response.
type Reply struct {
	Success bool `json:"success"`
	Message any  `json:"message"`
}

// Success builds a successful reply.
func Success(message any) Reply {
	return Reply{Success: true, Message: message}
}

// Failure builds a failed reply.
func Failure(message any) Reply {
	return Reply{Success: false, Message: message}
}

// Bytes serializes the reply. Values that cannot be encoded produce a generic failure.
func (r Reply) Bytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"success":false,"message":"internal error"}`)
	}
	return data
}
