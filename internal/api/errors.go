package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownStream  = errors.New("unknown event stream")
)

// Error codes produced on the client side. Backend codes pass through as-is.
const (
	CodeUnknown   = "unknown"
	CodeTransport = "transport_failed"
	CodeCanceled  = "canceled"
	CodeTimeout   = "timeout"
	CodeDecode    = "decode_failed"
)

// Error is the normalized shape of every failure a backend call surfaces.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Code == "" || e.Code == CodeUnknown {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError builds an Error with optional details.
func NewError(code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Normalize converts any failure value into an *Error. It never panics; a
// value that cannot be inspected is stringified.
func Normalize(v any) (out *Error) {
	defer func() {
		if r := recover(); r != nil {
			out = &Error{Code: CodeUnknown, Message: fmt.Sprintf("%v", v)}
		}
	}()

	switch x := v.(type) {
	case nil:
		return &Error{Code: CodeUnknown, Message: "unknown error"}
	case *Error:
		if x == nil {
			return &Error{Code: CodeUnknown, Message: "unknown error"}
		}
		cp := *x
		return &cp
	case Error:
		return &x
	case error:
		return normalizeError(x)
	case string:
		return &Error{Code: CodeUnknown, Message: x}
	case []byte:
		return normalizeJSON(x)
	case json.RawMessage:
		return normalizeJSON(x)
	case map[string]any:
		if e, ok := fromFields(x); ok {
			return e
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return &Error{Code: CodeUnknown, Message: fmt.Sprintf("%v", v)}
	}
	return &Error{Code: CodeUnknown, Message: string(b)}
}

func normalizeError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		cp := *ae
		return &cp
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Code: CodeCanceled, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeTimeout, Message: err.Error()}
	}
	return &Error{Code: CodeUnknown, Message: err.Error()}
}

func normalizeJSON(b []byte) *Error {
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return &Error{Code: CodeUnknown, Message: string(b)}
	}
	if s, ok := decoded.(string); ok {
		return &Error{Code: CodeUnknown, Message: s}
	}
	if m, ok := decoded.(map[string]any); ok {
		if e, ok := fromFields(m); ok {
			return e
		}
	}
	return &Error{Code: CodeUnknown, Message: string(b)}
}

func fromFields(m map[string]any) (*Error, bool) {
	code, cok := m["code"].(string)
	msg, mok := m["message"].(string)
	if !cok || !mok {
		return nil, false
	}
	return &Error{Code: code, Message: msg, Details: m["details"]}, true
}
