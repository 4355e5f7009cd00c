package envelope

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Timestamps travel as text so JSON and CBOR bodies decode alike.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("envelope: CBOR encoder initialization failed: " + err.Error())
	}

	// Untyped maps must decode as map[string]any so bodies look the same
	// whichever frame type carried them.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("envelope: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeBinary serializes an envelope to CBOR for a binary frame.
func EncodeBinary(e Envelope) ([]byte, error) {
	data, err := encMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// DecodeBinary parses a CBOR binary frame into an envelope.
func DecodeBinary(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, &DecodeError{Raw: data, Err: errors.New("empty frame")}
	}

	var e Envelope
	if err := decMode.Unmarshal(data, &e); err != nil {
		return Envelope{}, &DecodeError{Raw: data, Err: err}
	}
	if e.Channel == "" {
		return Envelope{}, &DecodeError{Raw: data, Err: errMissingChannel}
	}
	return e, nil
}

// EncodeBinaryBody serializes a response to CBOR.
func EncodeBinaryBody(v any) []byte {
	data, err := encMode.Marshal(v)
	if err != nil {
		data, _ = encMode.Marshal(map[string]any(ErrorBody(fmt.Sprintf("encode response: %v", err))))
	}
	return data
}

// DecodeBinaryBody parses a CBOR binary frame into a body. Like DecodeBody it
// never fails; undecodable frames are returned as {"payload": raw}.
func DecodeBinaryBody(data []byte) Body {
	var m map[string]any
	if err := decMode.Unmarshal(data, &m); err == nil && m != nil {
		return Body(m)
	}
	return Body{PayloadKey: string(data)}
}
