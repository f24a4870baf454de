package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SendPayload is the body of a send datagram.
type SendPayload struct {
	Message json.RawMessage `json:"message" validate:"required"`
}

// SendToPayload is the body of a sendto datagram. Recipient ids are not
// checked here; ids that are not room members are ignored at delivery.
type SendToPayload struct {
	Recipients []string        `json:"recipients" validate:"required,min=1"`
	Message    json.RawMessage `json:"message" validate:"required"`
}

// LookupPayload is the body of a lookup request.
type LookupPayload struct {
	IDs []int64 `json:"ids" validate:"required,min=1,max=64"`
}

type registerObject struct {
	UDPPort json.RawMessage `json:"udp_port"`
}

// RegisterPort extracts the client's data-plane port from a register payload.
// Accepted forms: 4000, "4000", {"udp_port": 4000}.
//
// Postcondition: Returns a port in 1..65535 or an error wrapping ErrInvalidEnvelope.
func RegisterPort(payload json.RawMessage) (int, error) {
	raw := bytes.TrimSpace(payload)
	if len(raw) > 0 && raw[0] == '{' {
		var obj registerObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		raw = bytes.TrimSpace(obj.UDPPort)
	}
	if len(raw) == 0 || isNull(raw) {
		return 0, fmt.Errorf("%w: register requires a udp port", ErrInvalidEnvelope)
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
	} else {
		text = string(raw)
	}
	port, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("%w: udp port %q is not an integer", ErrInvalidEnvelope, text)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: udp port %d out of range", ErrInvalidEnvelope, port)
	}
	return port, nil
}

// PayloadString returns the payload as a string when it is a JSON string,
// or "" otherwise.
func PayloadString(payload json.RawMessage) string {
	var s string
	if len(payload) == 0 || json.Unmarshal(payload, &s) != nil {
		return ""
	}
	return s
}

// RoomRef returns the room an action targets: the room_id field, falling back
// to a string payload.
func (e Envelope) RoomRef() string {
	if e.RoomID != "" {
		return e.RoomID
	}
	return PayloadString(e.Payload)
}

// DecodePayload unmarshals and validates a typed payload.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidEnvelope.
func DecodePayload(payload json.RawMessage, out any) error {
	if len(payload) == 0 || isNull(payload) {
		return fmt.Errorf("%w: missing payload", ErrInvalidEnvelope)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}

// DecodeSend decodes a send payload, rejecting a null message.
func DecodeSend(payload json.RawMessage) (SendPayload, error) {
	var p SendPayload
	if err := DecodePayload(payload, &p); err != nil {
		return SendPayload{}, err
	}
	if isNull(p.Message) {
		return SendPayload{}, fmt.Errorf("%w: message is null", ErrInvalidEnvelope)
	}
	return p, nil
}

// DecodeSendTo decodes a sendto payload, rejecting a null message.
func DecodeSendTo(payload json.RawMessage) (SendToPayload, error) {
	var p SendToPayload
	if err := DecodePayload(payload, &p); err != nil {
		return SendToPayload{}, err
	}
	if isNull(p.Message) {
		return SendToPayload{}, fmt.Errorf("%w: message is null", ErrInvalidEnvelope)
	}
	return p, nil
}

func isNull(raw []byte) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
