// Package errs holds the user-facing error type shared by the CLI and the
// HTTP API.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-level reporting.
type Kind int

// Error kinds. The zero value means the failure is internal.
const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindUpstream
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// UserErrorf is a user-facing error.
// This helper exists mostly to avoid linters complaining about errors starting
// with a capitalized letter.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error wraps an underlying error with a user-facing reason.
//
// Reason is meant to be short and actionable; Err may contain technical details.
// When Err is nil, Error() falls back to Reason.
type Error struct {
	Err    error
	Reason string
	Kind   Kind
}

// Wrap creates an Error with the given underlying error and user-facing reason.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf creates an Error with the given underlying error and a formatted reason.
func Wrapf(err error, format string, a ...any) Error {
	return Error{Err: err, Reason: fmt.Sprintf(format, a...)}
}

// Invalid marks a failure caused by bad input.
func Invalid(err error, reason string) Error {
	return Error{Err: err, Reason: reason, Kind: KindInvalid}
}

// NotFound marks a missing resource.
func NotFound(err error, reason string) Error {
	return Error{Err: err, Reason: reason, Kind: KindNotFound}
}

// Upstream marks a failure reported by a vendor service.
func Upstream(err error, reason string) Error {
	return Error{Err: err, Reason: reason, Kind: KindUpstream}
}

// Unavailable marks an upstream failure that is worth retrying.
func Unavailable(err error, reason string) Error {
	return Error{Err: err, Reason: reason, Kind: KindUnavailable}
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// ReasonText returns the user-facing reason for the error.
func (e Error) ReasonText() string {
	return e.Reason
}

// KindOf returns the kind of the outermost classified Error in err's chain.
func KindOf(err error) Kind {
	for err != nil {
		var e Error
		if !errors.As(err, &e) {
			return KindInternal
		}
		if e.Kind != KindInternal {
			return e.Kind
		}
		err = e.Err
	}
	return KindInternal
}

// ReasonOf returns the reason of the outermost Error in err's chain, or the
// error text when there is none.
func ReasonOf(err error) string {
	var e Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
