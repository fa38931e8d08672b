// Package jsonrpc encodes and decodes JSON-RPC 2.0 frames. One frame is
// one complete JSON message; framing is left to the transport.
package jsonrpc

import (
	"bytes"
	"encoding/json"

	"github.com/teranos/lspsession/errors"
)

// ProtocolVersion is the supported JSON-RPC protocol version.
const ProtocolVersion = "2.0"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	ErrorCodeParseError     ErrorCode = -32700
	ErrorCodeInvalidRequest ErrorCode = -32600
	ErrorCodeMethodNotFound ErrorCode = -32601
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603

	// ErrorCodeRequestCancelled is the LSP code for a request the client
	// cancelled with $/cancelRequest.
	ErrorCodeRequestCancelled ErrorCode = -32800
)

// Kind classifies a decoded message.
type Kind int

const (
	KindRequest Kind = iota
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	}
	return "unknown"
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Remote converts the error object into the session's RemoteError.
func (e *Error) Remote() *errors.RemoteError {
	return errors.NewRemoteError(int(e.Code), e.Message, e.Data)
}

// Message is a decoded inbound frame. ID is the raw id so replies to
// server requests can echo string ids unchanged.
type Message struct {
	Method string
	ID     json.RawMessage
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error
}

// Kind reports whether m is a request, notification or response.
func (m *Message) Kind() Kind {
	if m.Method != "" {
		if hasID(m.ID) {
			return KindRequest
		}
		return KindNotification
	}
	return KindResponse
}

// IntID returns the numeric id. ok is false for absent, null or
// non-integer ids.
func (m *Message) IntID() (int64, bool) {
	return intID(m.ID)
}

func hasID(id json.RawMessage) bool {
	return len(id) > 0 && !bytes.Equal(id, []byte("null"))
}

func intID(id json.RawMessage) (int64, bool) {
	if !hasID(id) {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(id, &n); err != nil {
		return 0, false
	}
	return n, true
}

// wireMessage captures every field an inbound frame may carry. A JSON
// null result decodes to the bytes "null", so presence is len > 0.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Decode parses one frame. Every failure wraps errors.ErrMalformedMessage.
func Decode(frame []byte) (*Message, error) {
	var raw wireMessage
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedMessage, "invalid JSON: %v", err)
	}

	if raw.JSONRPC != ProtocolVersion {
		return nil, errors.Wrapf(errors.ErrMalformedMessage,
			"invalid JSON-RPC version: expected %q, got %q", ProtocolVersion, raw.JSONRPC)
	}

	hasResult := len(raw.Result) > 0
	hasError := raw.Error != nil

	if raw.Method != "" {
		if hasResult || hasError {
			return nil, errors.Wrap(errors.ErrMalformedMessage, "request message cannot have result or error fields")
		}
	} else {
		if hasResult && hasError {
			return nil, errors.Wrap(errors.ErrMalformedMessage, "response message cannot have both result and error fields")
		}
		if !hasResult && !hasError {
			return nil, errors.Wrap(errors.ErrMalformedMessage, "message has neither method nor result nor error")
		}
		// This client only issues integer ids. A null id is legal only on
		// an error response to a frame the server could not parse.
		if _, ok := intID(raw.ID); !ok && (hasResult || hasID(raw.ID)) {
			return nil, errors.Wrapf(errors.ErrMalformedMessage, "response id %s is not an integer", string(raw.ID))
		}
	}

	return &Message{
		Method: raw.Method,
		ID:     raw.ID,
		Params: raw.Params,
		Result: raw.Result,
		Error:  raw.Error,
	}, nil
}

type requestFrame struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type notificationFrame struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type resultFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type errorFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *Error          `json:"error"`
}

// EncodeRequest builds a request frame. A nil params omits the field.
func EncodeRequest(id int64, method string, params any) ([]byte, error) {
	data, err := json.Marshal(requestFrame{JSONRPC: ProtocolVersion, ID: id, Method: method, Params: params})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s request", method)
	}
	return data, nil
}

// EncodeNotification builds a notification frame.
func EncodeNotification(method string, params any) ([]byte, error) {
	data, err := json.Marshal(notificationFrame{JSONRPC: ProtocolVersion, Method: method, Params: params})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s notification", method)
	}
	return data, nil
}

// EncodeResult builds a success response to a server request. A nil
// result is sent as JSON null.
func EncodeResult(id json.RawMessage, result any) ([]byte, error) {
	data, err := json.Marshal(resultFrame{JSONRPC: ProtocolVersion, ID: id, Result: result})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode result")
	}
	return data, nil
}

// EncodeError builds an error response to a server request.
func EncodeError(id json.RawMessage, rpcErr *Error) ([]byte, error) {
	data, err := json.Marshal(errorFrame{JSONRPC: ProtocolVersion, ID: id, Error: rpcErr})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode error response")
	}
	return data, nil
}
