// Package errs defines the sshmux error taxonomy described in spec §7.
// Every error that can cross the dispatcher boundary is wrapped into one
// of a fixed set of Kinds so the protocol layer never leaks a raw Go error
// or stack trace to the client.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the six error taxonomy kinds plus the operational kinds
// from spec §7.
type Kind string

const (
	KindConfigError       Kind = "ConfigError"
	KindAuthFailure       Kind = "AuthFailure"
	KindConnectError      Kind = "ConnectError"
	KindExecutionError    Kind = "ExecutionError"
	KindSafetyBlocked     Kind = "SafetyBlocked"
	KindTransferError     Kind = "TransferError"
	KindTimedOut          Kind = "TimedOut"
	KindCancelled         Kind = "Cancelled"
	KindPoolShuttingDown  Kind = "PoolShuttingDown"
	KindSessionNotFound   Kind = "SessionNotFound"
	KindSessionBusy       Kind = "SessionBusy"
	KindCacheMiss         Kind = "CacheMiss"
)

// Error is the uniform error envelope. It always carries a Kind so the
// dispatcher can map it onto the wire `{kind, message, ...}` shape without
// string-sniffing the message.
type Error struct {
	Kind    Kind
	Message string
	Host    string // optional, empty when not host-scoped
	Cause   error  // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("%s: %s (host=%s)", e.Kind, e.Message, e.Host)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no host and no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error carrying cause. The message is stored as given and
// Error() does not include the cause; it stays reachable through Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithHost returns a copy of e with Host set, for pool/executor call sites
// that know the HostKey but not yet the final message shape.
func (e *Error) WithHost(host string) *Error {
	cp := *e
	cp.Host = host
	return &cp
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns "" and ok=false. Used by the pool's connect
// retry loop to decide whether a dial error is retryable.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Retryable reports whether the pool's internal retry loop (spec §4.D
// Connect policy, §7 propagation: "pool retries ConnectError internally")
// should retry this error kind. Only ConnectError is retryable; everything
// else surfaces immediately.
func Retryable(kind Kind) bool {
	return kind == KindConnectError
}
