// Package failure defines the closed error taxonomy shared by DID resolution,
// dereferencing and compact token verification. Every error surfaced by those
// components carries a Kind so callers can tell "bad signature" apart from
// "could not resolve the key" or "garbage input" without string matching.
package failure

import (
	"errors"
	"fmt"
)

// Kind categorises a failure. Kinds are comparable with errors.Is.
type Kind string

const (
	InvalidDID           Kind = "invalid_did"
	InvalidDIDURL        Kind = "invalid_did_url"
	MethodNotSupported   Kind = "method_not_supported"
	ResolutionFailure    Kind = "resolution_failure"
	NotFound             Kind = "not_found"
	MalformedToken       Kind = "malformed_token"
	UnsupportedAlgorithm Kind = "unsupported_algorithm"
	KeyResolutionFailed  Kind = "key_resolution_failed"
	InvalidSignature     Kind = "invalid_signature"
	ClaimMismatch        Kind = "claim_mismatch"
	Internal             Kind = "internal"
)

func (k Kind) Error() string { return string(k) }

// Error is the structured failure value returned by the core components.
type Error struct {
	Kind   Kind   // taxonomy entry
	Op     string // operation that failed, e.g. "resolve" or "verify"
	Code   string // resolution/dereferencing error code when one applies
	Reason string // short human readable detail
	Err    error  // underlying cause, if any
}

// New builds an Error without an underlying cause.
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap builds an Error around cause.
func Wrap(kind Kind, op, reason string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason, Err: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of the outermost *Error in err's chain, or Internal
// when err carries no Kind. A nil error yields the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Internal
}
