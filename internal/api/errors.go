package api

import (
	"errors"
	"fmt"
)

// Kind classifies a failed request.
type Kind int

const (
	// KindTransport covers network failures and timeouts. It never triggers a refresh.
	KindTransport Kind = iota + 1
	// KindLogical covers success:false envelopes and non-401 HTTP errors.
	KindLogical
	// KindSessionExpired means the session was cleared and the user must log in again.
	KindSessionExpired
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindLogical:
		return "logical"
	case KindSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on *Error kinds.
var (
	ErrTransport      = errors.New("transport failure")
	ErrLogical        = errors.New("request failed")
	ErrSessionExpired = errors.New("session expired")
)

// Error is the single failure type returned by the pipeline.
type Error struct {
	Kind Kind
	// Status is the HTTP status code, or 0 if no response was received.
	Status int
	// Message is the backend-supplied error or a generic fallback.
	Message string
	// LoginURL is set for KindSessionExpired and points at the login entry point.
	LoginURL string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindLogical:
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrLogical:
		return e.Kind == KindLogical
	case ErrSessionExpired:
		return e.Kind == KindSessionExpired
	}
	return false
}

// KindOf returns the Kind of a pipeline error, or 0 if err is not one.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// Message returns a human-readable message suitable for showing to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return "Something went wrong"
	}
	switch apiErr.Kind {
	case KindTransport:
		return "Unable to reach the server. Please try again."
	case KindSessionExpired:
		return "Your session has expired. Please log in again."
	default:
		return apiErr.Message
	}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: "transport failure", Err: err}
}

func logicalError(status int, message string, cause error) *Error {
	return &Error{Kind: KindLogical, Status: status, Message: message, Err: cause}
}
