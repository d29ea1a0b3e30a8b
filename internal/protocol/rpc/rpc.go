// Package rpc defines the request/response envelope model and its
// MessagePack encoding.
//
// Every payload on the wire is a map with string keys. Requests carry
// version, id, method and params; responses echo the id and carry exactly
// one of result or error. Server-initiated notifications carry an event
// discriminator and no id.
package rpc

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is the protocol version stamped on every envelope.
const Version = "2.0"

// Request is a decoded request envelope. ID and Params stay raw: the id
// is echoed back verbatim without interpretation, and params are decoded
// by the individual handler into its own argument struct.
type Request struct {
	Version string             `msgpack:"version"`
	ID      msgpack.RawMessage `msgpack:"id"`
	Method  string             `msgpack:"method"`
	Params  msgpack.RawMessage `msgpack:"params"`
}

// IsNotification reports whether the request carries no id and therefore
// expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || isNil(r.ID)
}

// IDString renders the raw id for logging. Best effort only.
func (r *Request) IDString() string {
	if r.IsNotification() {
		return ""
	}
	var v any
	if err := msgpack.Unmarshal(r.ID, &v); err != nil {
		return fmt.Sprintf("%x", []byte(r.ID))
	}
	return fmt.Sprintf("%v", v)
}

func isNil(raw msgpack.RawMessage) bool {
	return len(raw) == 1 && raw[0] == 0xc0
}

// DecodeRequest parses a request envelope from a frame payload.
//
// On a malformed payload it attempts to salvage the request id so the
// dispatcher can still address a parse-error response; if even that
// fails, the returned request is nil and the connection must close.
func DecodeRequest(payload []byte) (*Request, error) {
	var req Request
	if err := msgpack.Unmarshal(payload, &req); err != nil {
		if id := salvageID(payload); id != nil {
			return &Request{ID: id}, fmt.Errorf("decode request envelope: %w", err)
		}
		return nil, fmt.Errorf("decode request envelope: %w", err)
	}
	return &req, nil
}

// salvageID pulls the id out of a payload whose full envelope decode
// failed, so a parse-error response can still be correlated.
func salvageID(payload []byte) msgpack.RawMessage {
	var fields map[string]msgpack.RawMessage
	if err := msgpack.Unmarshal(payload, &fields); err != nil {
		return nil
	}
	return fields["id"]
}

// UnmarshalParams decodes raw request params into a handler's argument
// struct. Missing params decode every field to its zero value.
func UnmarshalParams(raw msgpack.RawMessage, v any) *Error {
	if len(raw) == 0 || isNil(raw) {
		return nil
	}
	if err := msgpack.Unmarshal(raw, v); err != nil {
		return InvalidParams(err.Error())
	}
	return nil
}

// EncodeResult builds a success response envelope. A nil result encodes
// as an explicit null result, which is a valid outcome (file.stat on an
// absent path).
func EncodeResult(id msgpack.RawMessage, result any) ([]byte, error) {
	return encodeResponse(id, "result", result)
}

// EncodeError builds an error response envelope.
func EncodeError(id msgpack.RawMessage, rpcErr *Error) ([]byte, error) {
	return encodeResponse(id, "error", rpcErr)
}

func encodeResponse(id msgpack.RawMessage, key string, value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeMapLen(3); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("version"); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(Version); err != nil {
		return nil, err
	}
	if err := enc.EncodeString("id"); err != nil {
		return nil, err
	}
	if len(id) == 0 {
		if err := enc.EncodeNil(); err != nil {
			return nil, err
		}
	} else if err := enc.Encode(id); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(key); err != nil {
		return nil, err
	}
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("encode response %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// EncodeNotification builds a server-initiated event envelope. The event
// value must be a struct whose first msgpack field is "event".
func EncodeNotification(event any) ([]byte, error) {
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return payload, nil
}
