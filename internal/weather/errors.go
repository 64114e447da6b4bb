package weather

import (
	"errors"
	"fmt"
)

// Weather errors. Use errors.Is against these; the concrete error is an
// *Error carrying the cause.
var (
	ErrNotFound     = errors.New("location not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("weather data unavailable")
	ErrUpstream     = errors.New("upstream provider failure")
)

// Kind classifies a weather error.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindUnavailable  Kind = "UNAVAILABLE"
	KindUpstream     Kind = "UPSTREAM_FAILURE"
)

// Cause tells whether a failure came from the provider being unreachable or
// from the provider answering without the requested data.
type Cause string

const (
	// CauseAbsent means the provider answered but had no matching data.
	CauseAbsent Cause = "ABSENT"

	// CauseUpstream means the call itself failed (network, HTTP status,
	// decoding). Worth retrying later.
	CauseUpstream Cause = "UPSTREAM"
)

// Error is the tagged error returned by geocoding and weather lookups.
type Error struct {
	Kind  Kind
	Cause Cause
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", sentinel(e.Kind), e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

// Retryable reports whether the failure was caused by the upstream call.
func (e *Error) Retryable() bool {
	return e.Cause == CauseUpstream
}

func sentinel(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUnavailable:
		return ErrUnavailable
	case KindUpstream:
		return ErrUpstream
	default:
		return nil
	}
}

// CauseOf returns the cause tagged on err, or "" when err is not an *Error.
func CauseOf(err error) Cause {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Cause
	}
	return ""
}

func notFound(cause Cause, err error) error {
	return &Error{Kind: KindNotFound, Cause: cause, Err: err}
}

func unavailable(cause Cause, err error) error {
	return &Error{Kind: KindUnavailable, Cause: cause, Err: err}
}

func invalidInput(err error) error {
	return &Error{Kind: KindInvalidInput, Err: err}
}
