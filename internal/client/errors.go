package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindHTTP is a response with a non-2xx status.
	KindHTTP Kind = iota + 1
	// KindTimeout is a call cut off by the client's timeout.
	KindTimeout
	// KindNetwork is a failure before any response arrived.
	KindNetwork
	// KindCanceled is a call whose parent context was canceled.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is against *Error.
var (
	ErrHTTP     = errors.New("client: http failure")
	ErrTimeout  = errors.New("client: request timed out")
	ErrNetwork  = errors.New("client: network failure")
	ErrCanceled = errors.New("client: request canceled")
)

const (
	timeoutMessage  = "The request timed out. Check your network connection and try again."
	canceledMessage = "The request was canceled."
)

// Error is returned by Send for every failed call. Message is already
// normalized for display.
type Error struct {
	Kind       Kind
	Method     string
	URL        string
	StatusCode int
	Status     string
	Message    string
	// Payload is the decoded error body for KindHTTP.
	Payload any
	// Raw is the undecoded error body for KindHTTP.
	Raw []byte
	// Err is the underlying transport error, if any.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

// Timeout reports whether the call was cut off by the client's timer.
func (e *Error) Timeout() bool { return e.Kind == KindTimeout }

// ErrorData exposes the decoded body to errmsg.
func (e *Error) ErrorData() any { return e.Payload }

// ErrorFields exposes response-shaped fields to errmsg.
func (e *Error) ErrorFields() map[string]any {
	fields := map[string]any{
		"statusText": e.Status,
		"status":     e.StatusCode,
	}
	if e.Payload != nil {
		fields["data"] = e.Payload
	}
	return fields
}

// AsError returns the *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if e, ok := AsError(err); ok {
		return e.StatusCode
	}
	return 0
}

// statusText returns the reason phrase of resp, e.g. "Not Found".
func statusText(resp *http.Response) string {
	if _, after, ok := strings.Cut(resp.Status, " "); ok && after != "" {
		return after
	}
	return http.StatusText(resp.StatusCode)
}
