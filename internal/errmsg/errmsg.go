// Package errmsg reduces arbitrary error values to one display line.
//
// The backend answers failures in several shapes: plain strings, a single
// detail string, FastAPI validation-error lists, per-field detail objects,
// generic message/msg/error fields, and transport errors on the client side.
// Normalize walks them with a fixed precedence so every caller shows the
// same text for the same failure.
package errmsg

import (
	"errors"
	"strings"

	"github.com/nghyane/board-client/internal/json"
	"github.com/nghyane/board-client/internal/payload"
)

const (
	// Fallback is returned when no usable message can be found.
	Fallback = "an error occurred"

	// UnknownDetail is returned for a detail object whose first value
	// is not a plain scalar.
	UnknownDetail = "unknown error occurred"

	// objectText is what a browser prints for a stringified plain object.
	objectText = "[object Object]"

	maxDepth = 32
)

// DataCarrier is implemented by errors that keep the decoded response body.
type DataCarrier interface {
	ErrorData() any
}

// ResponseCarrier is implemented by errors that keep a response wrapper.
type ResponseCarrier interface {
	ResponseData() any
}

// FieldCarrier is implemented by errors that expose response-shaped
// fields (statusText, status, data) for the last-resort walk.
type FieldCarrier interface {
	ErrorFields() map[string]any
}

// Normalize returns the display message for v. It never panics and never
// returns an empty string.
func Normalize(v any) string {
	if msg, ok := Extract(v); ok {
		return msg
	}
	return Fallback
}

// Extract is Normalize without the generic fallback: ok is false when v
// carries no usable message.
func Extract(v any) (msg string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			msg, ok = "", false
		}
	}()
	return extract(v, 0)
}

func extract(v any, depth int) (string, bool) {
	if depth > maxDepth {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return fromString(t, depth)
	case []byte:
		return fromString(string(t), depth)
	case json.RawMessage:
		return fromString(string(t), depth)
	case error:
		return fromError(t, depth)
	}
	return fromResponse(payload.From(v), v, depth)
}

// StripPrefix removes a leading "Error:" and the whitespace after it.
func StripPrefix(s string) string {
	if rest, ok := strings.CutPrefix(s, "Error:"); ok {
		return strings.TrimLeft(rest, " \t\r\n")
	}
	return s
}

// parseJSON returns the decoded value of s when s looks like a JSON object
// or array.
func parseJSON(s string) (any, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{") && !strings.HasPrefix(t, "[") {
		return nil, false
	}
	v, err := payload.ParseString(t)
	if err != nil {
		return nil, false
	}
	return v, true
}

func fromString(s string, depth int) (string, bool) {
	if parsed, ok := parseJSON(s); ok {
		return extract(parsed, depth+1)
	}
	msg := StripPrefix(s)
	return msg, msg != ""
}

// errorProbes are tried in order after the error's own message.
var errorProbes = []func(err error) (any, bool){
	func(err error) (any, bool) {
		cause := errors.Unwrap(err)
		if cause == nil {
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				for _, e := range joined.Unwrap() {
					if e != nil {
						return e, true
					}
				}
			}
			return nil, false
		}
		return cause, true
	},
	func(err error) (any, bool) {
		if c, ok := err.(DataCarrier); ok {
			return c.ErrorData(), true
		}
		return nil, false
	},
	func(err error) (any, bool) {
		if c, ok := err.(ResponseCarrier); ok {
			return c.ResponseData(), true
		}
		return nil, false
	},
}

func fromError(err error, depth int) (string, bool) {
	msg := StripPrefix(safeErrorText(err))
	if parsed, ok := parseJSON(msg); ok {
		return extract(parsed, depth+1)
	}
	if msg != "" && msg != objectText {
		return msg, true
	}
	for _, probe := range errorProbes {
		v, ok := probe(err)
		if !ok || v == nil {
			continue
		}
		if found, ok := extract(v, depth+1); ok && found != objectText {
			return found, true
		}
	}
	if fc, ok := err.(FieldCarrier); ok {
		fields := payload.From(fc.ErrorFields())
		return fromResponse(fields, fields, depth)
	}
	return "", false
}

func safeErrorText(err error) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return err.Error()
}
