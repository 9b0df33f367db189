// Package errs defines the failure taxonomy shared by the client core.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by how the caller should recover.
type Kind int

const (
	// NetworkFailure means the call did not complete. Retryable.
	NetworkFailure Kind = iota + 1
	// Unauthorized is left to the session owner to handle.
	Unauthorized
	// ValidationFailure is raised before any remote call, or echoed by the server.
	ValidationFailure
	// NotFound means the target no longer exists remotely.
	NotFound
	// ServerFailure is any other non-success response.
	ServerFailure
)

func (k Kind) String() string {
	switch k {
	case NetworkFailure:
		return "network failure"
	case Unauthorized:
		return "unauthorized"
	case ValidationFailure:
		return "validation failure"
	case NotFound:
		return "not found"
	case ServerFailure:
		return "server failure"
	}
	return "unknown"
}

// Error carries a Kind together with the operation that failed.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Network wraps a transport error.
func Network(op string, err error) error {
	return &Error{Kind: NetworkFailure, Op: op, Err: err}
}

// Validation reports bad input detected client-side.
func Validation(op, reason string) error {
	return &Error{Kind: ValidationFailure, Op: op, Err: errors.New(reason)}
}

// FromStatus maps a non-2xx HTTP status to an Error.
func FromStatus(op string, status int, detail string) error {
	var err error
	if detail != "" {
		err = errors.New(detail)
	}
	e := &Error{Op: op, Status: status, Err: err}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = Unauthorized
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = ValidationFailure
	case status == http.StatusNotFound:
		e.Kind = NotFound
	case status == http.StatusTooManyRequests || status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		e.Kind = NetworkFailure
	default:
		e.Kind = ServerFailure
	}
	return e
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether retrying the same call may succeed.
func Retryable(err error) bool {
	return Is(err, NetworkFailure)
}
