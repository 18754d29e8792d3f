// Package apperr classifies failures so that per-item errors can be recorded
// in batch results and top-level errors mapped to HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the failure category of an error.
type Kind string

const (
	KindUnknown    Kind = ""
	KindValidation Kind = "validation"
	KindDecode     Kind = "decode"
	KindEncode     Kind = "encode"
	KindFetch      Kind = "fetch"
	KindStorage    Kind = "storage"
	KindNotFound   Kind = "not_found"
)

// Error wraps an underlying error with its kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is shorthand for a validation error with a plain message.
func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// NotFound is shorthand for a not-found error with a plain message.
func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Err: errors.New(msg)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error's kind to the status a handler should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindDecode:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
