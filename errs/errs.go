/*
Package errs implements the typed error taxonomy for the FTP connection
pool (spec §7). Every failure that crosses a component boundary is wrapped
into a *Error carrying a stable Kind, an optional protocol reply code, and
enough context (path, connection id) for an operator to act on it without
leaking credentials.
*/
package errs

import (
	"errors"
	"fmt"
)

// Kind is one tag from the fixed taxonomy. Kinds never change their
// Recoverable() answer at runtime — classification is a pure function.
type Kind string

const (
	KindConnectionError        Kind = "ConnectionError"
	KindConnectionTimeout      Kind = "ConnectionTimeout"
	KindConnectionClosed       Kind = "ConnectionClosed"
	KindConnectionRefused      Kind = "ConnectionRefused"
	KindAuthenticationError    Kind = "AuthenticationError"
	KindInvalidCredentials     Kind = "InvalidCredentials"
	KindInsufficientPerms      Kind = "InsufficientPermissions"
	KindFileNotFound           Kind = "FileNotFound"
	KindFileAlreadyExists      Kind = "FileAlreadyExists"
	KindDirectoryNotFound      Kind = "DirectoryNotFound"
	KindDirectoryNotEmpty      Kind = "DirectoryNotEmpty"
	KindInvalidPath            Kind = "InvalidPath"
	KindTransferError          Kind = "TransferError"
	KindTransferAborted        Kind = "TransferAborted"
	KindTransferTimeout        Kind = "TransferTimeout"
	KindInsufficientStorage    Kind = "InsufficientStorage"
	KindDataConnectionError    Kind = "DataConnectionError"
	KindDataConnectionTimeout  Kind = "DataConnectionTimeout"
	KindServerError            Kind = "ServerError"
	KindCommandNotSupported    Kind = "CommandNotSupported"
	KindInvalidSequence        Kind = "InvalidSequence"
	KindClientError            Kind = "ClientError"
	KindInvalidConfiguration   Kind = "InvalidConfiguration"
	KindPoolExhausted          Kind = "PoolExhausted"
	KindPoolError              Kind = "PoolError"
	KindPoolClosed             Kind = "PoolClosed"
	KindNoHealthyConnection    Kind = "NoHealthyConnection"
	KindCircuitOpen            Kind = "CircuitOpen"
	KindUnexpectedError        Kind = "UnexpectedError"
	KindValidationError        Kind = "ValidationError"
)

// recoverable is the fixed recoverable flag per kind, per spec §4.5/§7.
// Tie-breaks and "other 4xx/5xx" buckets are resolved in Classify, not here.
var recoverable = map[Kind]bool{
	KindConnectionError:       true,
	KindConnectionTimeout:     true,
	KindConnectionClosed:      true,
	KindConnectionRefused:     true,
	KindAuthenticationError:   false,
	KindInvalidCredentials:    false,
	KindInsufficientPerms:     false,
	KindFileNotFound:          false,
	KindFileAlreadyExists:     false,
	KindDirectoryNotFound:     false,
	KindDirectoryNotEmpty:     false,
	KindInvalidPath:           false,
	KindTransferError:         true,
	KindTransferAborted:       true,
	KindTransferTimeout:       true,
	KindInsufficientStorage:   false,
	KindDataConnectionError:   true,
	KindDataConnectionTimeout: true,
	KindServerError:           true, // overridden per-reply-code in Classify for 5xx
	KindCommandNotSupported:   false,
	KindInvalidSequence:       true,
	KindClientError:           false,
	KindInvalidConfiguration:  false,
	KindPoolExhausted:         false,
	KindPoolError:             false,
	KindPoolClosed:            false,
	KindNoHealthyConnection:   false,
	KindCircuitOpen:           false,
	KindUnexpectedError:       false,
	KindValidationError:       false,
}

// Error is the structured, stable-message error value the pool returns
// to callers. It never includes passwords or trust-store secrets.
type Error struct {
	Kind          Kind
	Message       string
	ReplyCode     int    // optional FTP reply code, 0 if not applicable
	Path          string // optional affected remote path
	ConnectionID  string // optional connection id
	recoverable   bool
	cause         error
}

// New builds an Error of the given kind with a human message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, recoverable: recoverable[kind]}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause, recoverable: recoverable[kind]}
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause chain for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Recoverable reports whether this error kind is eligible for the
// retry/circuit-breaker machinery in package recovery.
func (e *Error) Recoverable() bool { return e.recoverable }

// WithPath returns a copy of e with Path set.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// WithConnectionID returns a copy of e with ConnectionID set.
func (e *Error) WithConnectionID(id string) *Error {
	c := *e
	c.ConnectionID = id
	return &c
}

// WithReplyCode returns a copy of e with ReplyCode set.
func (e *Error) WithReplyCode(code int) *Error {
	c := *e
	c.ReplyCode = code
	return &c
}

// Is supports errors.Is(err, errs.New(KindX, "")) style kind comparisons,
// ignoring message/path/cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Of extracts the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
