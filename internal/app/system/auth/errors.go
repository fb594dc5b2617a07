package auth

import (
	"fmt"
	"time"

	"github.com/dalemusser/stratagate/internal/app/system/bruteforce"
)

// Kind classifies an authentication failure.
type Kind string

const (
	KindMalformedRequest       Kind = "malformed_request"
	KindInvalidSignature       Kind = "invalid_signature"
	KindStaleAssertion         Kind = "stale_assertion"
	KindPrincipalNotRegistered Kind = "not_registered"
	KindInsufficientPermission Kind = "insufficient_permission"
	KindRateLimited            Kind = "too_many_attempts"
	KindInvalidToken           Kind = "invalid_token"
	KindSessionNotFound        Kind = "session_not_found"
	KindConfiguration          Kind = "configuration_error"
	KindInternal               Kind = "internal"
)

// User-facing messages. These are the only texts that reach response bodies.
const (
	MsgMalformedRequest       = "Missing required authentication fields"
	MsgInvalidSignature       = "Invalid authentication data"
	MsgStaleAssertion         = "Authentication data has expired"
	MsgPrincipalNotRegistered = "User not registered. Please start the bot first."
	MsgInsufficientPermission = "Insufficient permissions to access the dashboard"
	MsgInvalidToken           = "Invalid or expired token"
	MsgSessionNotFound        = "Session not found"
	MsgInternal               = "Internal server error"
)

// Lockout describes the block that caused a KindRateLimited error.
type Lockout struct {
	Type        bruteforce.Type
	Until       time.Time
	MinutesLeft int
}

// Error is returned by Service operations. Match it with errors.As.
type Error struct {
	Kind    Kind
	Message string
	Lockout *Lockout
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

func invalidToken() *Error {
	return newError(KindInvalidToken, MsgInvalidToken)
}

func rateLimited(typ bruteforce.Type, st bruteforce.Status) *Error {
	lock := &Lockout{Type: typ, MinutesLeft: st.MinutesLeft}
	if st.BlockedUntil != nil {
		lock.Until = *st.BlockedUntil
	}
	return &Error{
		Kind:    KindRateLimited,
		Message: LockoutMessage(st.MinutesLeft),
		Lockout: lock,
	}
}

// LockoutMessage renders the message shown to a locked out caller.
func LockoutMessage(minutes int) string {
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Too many failed login attempts. Try again in %d %s.", minutes, unit)
}
