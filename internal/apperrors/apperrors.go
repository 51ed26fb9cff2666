// Package apperrors defines the relay's error taxonomy as a single typed
// error with a stable, machine-readable code, so session code can
// classify a failure with errors.As and decide whether to emit a
// wire-level error frame, close silently, or merely log, instead of
// branching on ad hoc message strings.
package apperrors

import (
	"errors"
	"fmt"
)

// Code identifies a category of relay failure.
type Code string

const (
	CodeAuthFailure         Code = "AUTH_FAILURE"
	CodeDuplicateAgent      Code = "DUPLICATE_AGENT"
	CodeUnknownTarget       Code = "UNKNOWN_TARGET"
	CodeProtocolViolation   Code = "PROTOCOL_VIOLATION"
	CodeUnsupportedProtocol Code = "UNSUPPORTED_PROTOCOL"
	CodePeerGone            Code = "PEER_GONE"
	CodeStrayIdentifier     Code = "STRAY_IDENTIFIER"
)

// RelayError is the relay's standard error type: a stable Code plus an
// optional wrapped cause. Wire, when non-empty, is the exact message a
// session sends to the surviving peer as an `error` frame; when empty the
// failure terminates its session without any frame — the two outcomes
// §7 calls "surfaced to the peer" and "silent close".
type RelayError struct {
	Code    Code
	Message string
	Wire    string
	Cause   error
}

// WithWire attaches the wire-level error message a session should send to
// the peer for this failure, and returns e for chaining at the call site.
func (e *RelayError) WithWire(message string) *RelayError {
	e.Wire = message
	return e
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

func New(code Code, message string) *RelayError {
	return &RelayError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *RelayError {
	return &RelayError{Code: code, Message: message, Cause: cause}
}

// Is reports whether err is a *RelayError carrying the given code.
func Is(err error, code Code) bool {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func AuthFailure(message string) *RelayError { return New(CodeAuthFailure, message) }
func DuplicateAgent(name string) *RelayError {
	return New(CodeDuplicateAgent, fmt.Sprintf("agent %q already registered", name))
}
func UnknownTarget(name string) *RelayError {
	return New(CodeUnknownTarget, fmt.Sprintf("agent %q not registered", name))
}
func ProtocolViolation(message string) *RelayError { return New(CodeProtocolViolation, message) }
func UnsupportedProtocol(proto string) *RelayError {
	return New(CodeUnsupportedProtocol, fmt.Sprintf("unsupported protocol %q", proto))
}
func PeerGone(message string) *RelayError { return New(CodePeerGone, message) }
func StrayIdentifier(id string) *RelayError {
	return New(CodeStrayIdentifier, fmt.Sprintf("unknown connection_id %q", id))
}
