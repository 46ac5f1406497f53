// Package apperr carries the error kinds every service in the backend returns.
// Handlers translate kinds to HTTP statuses; services never build HTTP errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Internal            Kind = "INTERNAL"
	NotFound            Kind = "NOT_FOUND"
	Forbidden           Kind = "FORBIDDEN"
	InvalidState        Kind = "INVALID_STATE"
	InvalidInput        Kind = "INVALID_INPUT"
	Conflict            Kind = "CONFLICT"
	OtpMismatch         Kind = "OTP_MISMATCH"
	InsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	AlreadyPaid         Kind = "ALREADY_PAID"
	UnknownUser         Kind = "UNKNOWN_USER"
	MissingSeekerConfig Kind = "MISSING_SEEKER_CONFIG"
	DependencyFailure   Kind = "DEPENDENCY_FAILURE"
)

// Error is a classified failure. Op names the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message is the client-facing text for err. Internal errors are not exposed.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return "internal server error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound, UnknownUser:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case InvalidState, Conflict, AlreadyPaid:
		return http.StatusConflict
	case InvalidInput, MissingSeekerConfig:
		return http.StatusBadRequest
	case OtpMismatch:
		return http.StatusUnprocessableEntity
	case InsufficientFunds:
		return http.StatusPaymentRequired
	case DependencyFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
