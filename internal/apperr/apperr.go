// Package apperr defines the error taxonomy shared by the agent's components.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers should react to it.
type Kind string

const (
	KindTransient        Kind = "TRANSIENT"         // network failures, HTTP 5xx, filesystem races
	KindAuthExpired      Kind = "AUTH_EXPIRED"      // bearer rejected and refresh failed
	KindPermanentRemote  Kind = "PERMANENT_REMOTE"  // HTTP 4xx other than 401
	KindStore            Kind = "STORE"             // DDL or constraint failure
	KindDevice           Kind = "DEVICE"            // no screen, no audio input
	KindConfig           Kind = "CONFIG"            // invalid user input
	KindAlreadyRecording Kind = "ALREADY_RECORDING" // dictation already armed
	KindNoAudio          Kind = "NO_AUDIO"          // dictation produced no samples
	KindNotFound         Kind = "NOT_FOUND"
)

// NotAuthenticated is the message surfaced to the user for every AuthExpired error.
const NotAuthenticated = "Not authenticated — please log in again"

// Error is a classified error with a display message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error returns the display message, followed by the cause when there is one.
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps a retryable failure.
func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

// AuthExpired reports that no usable bearer token exists.
func AuthExpired(err error) *Error {
	return &Error{Kind: KindAuthExpired, Message: NotAuthenticated, Err: err}
}

// PermanentRemote wraps a remote rejection that retrying will not fix.
func PermanentRemote(msg string) *Error {
	return &Error{Kind: KindPermanentRemote, Message: msg}
}

// Store wraps a database failure.
func Store(msg string, err error) *Error {
	return &Error{Kind: KindStore, Message: msg, Err: err}
}

// Device wraps a missing or failing capture device.
func Device(msg string, err error) *Error {
	return &Error{Kind: KindDevice, Message: msg, Err: err}
}

// Config reports invalid user input.
func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing row.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

// AlreadyRecording is returned by a second dictation start.
func AlreadyRecording() *Error {
	return &Error{Kind: KindAlreadyRecording, Message: "dictation already recording"}
}

// NoAudio is returned when dictation stops with an empty buffer.
func NoAudio() *Error {
	return &Error{Kind: KindNoAudio, Message: "no audio captured"}
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Status maps a kind to the HTTP status the local control API answers with.
func Status(err error) int {
	switch KindOf(err) {
	case KindConfig:
		return 400
	case KindAuthExpired:
		return 401
	case KindNotFound:
		return 404
	case KindAlreadyRecording:
		return 409
	case KindNoAudio, KindPermanentRemote:
		return 422
	case KindTransient:
		return 502
	case KindDevice:
		return 503
	default:
		return 500
	}
}
