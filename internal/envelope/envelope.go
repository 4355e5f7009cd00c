package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadKey holds the raw text of a body that was not a structured object.
const PayloadKey = "payload"

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("invalid envelope")

var errMissingChannel = errors.New("missing channel")

// DecodeError reports a frame that is not a well-formed envelope.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return ErrDecode.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Envelope is the wire message exchanged on a connection.
// Message is a map[string]any, a string, or []byte (binary frames only).
type Envelope struct {
	Channel   string `json:"channel" cbor:"channel"`
	Message   any    `json:"message" cbor:"message"`
	Subscribe bool   `json:"subscribe,omitempty" cbor:"subscribe,omitempty"`
	Reply     bool   `json:"reply,omitempty" cbor:"reply,omitempty"`
}

// Fields returns the message as an object. A string or empty message yields
// an empty Body.
func (e Envelope) Fields() Body {
	switch m := e.Message.(type) {
	case map[string]any:
		return Body(m)
	case Body:
		return m
	default:
		return Body{}
	}
}

// Body is a decoded response or stream item.
type Body map[string]any

// String returns the value at key when it is a string.
func (b Body) String(key string) string {
	s, _ := b[key].(string)
	return s
}

// Has reports whether key is present with a non-nil value.
func (b Body) Has(key string) bool {
	v, ok := b[key]
	return ok && v != nil
}

// Error returns the "error" field, or "" when the body is not an error reply.
func (b Body) Error() string {
	return b.String("error")
}

// ErrorBody builds the structured error reply sent by the server.
func ErrorBody(msg string) Body {
	return Body{"error": msg}
}

// Encode serializes an envelope to JSON text. A message that cannot be
// marshaled is sent as its string form instead.
func Encode(e Envelope) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		e.Message = fmt.Sprint(e.Message)
		data, _ = json.Marshal(e)
	}
	return data
}

// Decode parses a JSON text frame into an envelope. A frame without a
// channel is rejected.
func Decode(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, &DecodeError{Raw: data, Err: errors.New("not a JSON object")}
	}

	var e Envelope
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return Envelope{}, &DecodeError{Raw: data, Err: err}
	}
	if e.Channel == "" {
		return Envelope{}, &DecodeError{Raw: data, Err: errMissingChannel}
	}
	return e, nil
}

// EncodeBody serializes a response (a Body or any JSON-tagged struct) to
// JSON text.
func EncodeBody(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(ErrorBody(fmt.Sprintf("encode response: %v", err)))
	}
	return data
}

// DecodeBody parses a JSON text frame into a body. It never fails: anything
// other than a JSON object is returned as {"payload": raw}.
func DecodeBody(data []byte) Body {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var b Body
		if err := json.Unmarshal(trimmed, &b); err == nil && b != nil {
			return b
		}
	}
	return Body{PayloadKey: string(data)}
}

// Decode copies the body into a JSON-tagged struct.
func (b Body) Decode(v any) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}
	return nil
}
